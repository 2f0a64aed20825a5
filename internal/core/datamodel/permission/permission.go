package permission

import "time"

// Permission.Action holds the "verb:resource" name and is unique across the catalog.
type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Action      string    `gorm:"column:action;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Permission) TableName() string { return "permissions" }

type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RolePermission) TableName() string { return "role_permissions" }
