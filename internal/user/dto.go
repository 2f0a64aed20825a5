package user

type CreateRoleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}

// ProfileResponse is returned by GET /users/me.
type ProfileResponse struct {
	*User
	Permissions []string `json:"permissions"`
}
