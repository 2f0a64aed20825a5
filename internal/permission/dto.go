package permission

type CreatePermissionDTO struct {
	Action      string `json:"action"`
	Description string `json:"description"`
}

type UpdatePermissionDTO struct {
	Action      *string `json:"action,omitempty"`
	Description *string `json:"description,omitempty"`
}

type PermissionsResponse struct {
	Permissions []*Permission `json:"permissions"`
}
