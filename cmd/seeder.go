package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/auth"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/permission"
	permissionPostgres "github.com/frahmantamala/backoffice/internal/permission/postgres"
	"github.com/frahmantamala/backoffice/internal/user"
	userPostgres "github.com/frahmantamala/backoffice/internal/user/postgres"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

const seedPassword = "password"

type seedUser struct {
	Email string
	Name  string
	Role  string
}

var (
	seedRoles = []user.CreateRoleDTO{
		{Name: "ADMIN", Description: "full administrator"},
		{Name: "POS", Description: "point of sale cashier"},
	}

	seedUsers = []seedUser{
		{Email: "admin@backoffice.local", Name: "Store Admin", Role: "ADMIN"},
		{Email: "cashier@backoffice.local", Name: "Cashier", Role: "POS"},
	}

	// Actions the cashier needs on the floor. ADMIN gets every action in the catalog.
	posActions = []string{"list:categories", "view:categories"}

	seedPermissions = []permission.CreatePermissionDTO{
		{Action: "list:categories", Description: "Browse product categories"},
		{Action: "view:categories", Description: "Read a product category"},
		{Action: "create:categories", Description: "Create product categories"},
		{Action: "update:categories", Description: "Edit product categories"},
		{Action: "delete:categories", Description: "Deactivate product categories"},
	}
)

// Child tables first.
var seedTables = []string{"role_permissions", "user_roles", "permissions", "roles", "users"}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed roles, demo users and the base permission catalog for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if err := runSeed(cmd.Context(), gdb, cfg.Security.BCryptCost); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	},
}

func runSeed(ctx context.Context, gdb *gorm.DB, bcryptCost int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.LoggerWrapper()

	if clearData {
		for _, table := range seedTables {
			if err := gdb.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		fmt.Println("Cleared existing users, roles and permissions")
	}

	users := user.NewService(userPostgres.NewUserRepository(gdb), lg)
	// The seeder writes straight to the catalog; a throwaway cache keeps the
	// service's invalidation path happy without touching the server's.
	permissions := permission.NewService(permissionPostgres.NewPermissionRepository(gdb), users, memory.New(0, 0), lg)

	roleIDs := map[string]int64{}
	for _, dto := range seedRoles {
		role, err := users.FindRoleByName(ctx, dto.Name)
		if errors.Is(err, appErrors.ErrRoleNotFound) {
			role, err = users.CreateRole(ctx, dto)
			if err == nil {
				fmt.Println("Seeded role:", dto.Name)
			}
		}
		if err != nil {
			return fmt.Errorf("role %s: %w", dto.Name, err)
		}
		roleIDs[dto.Name] = role.ID
	}

	hash, err := auth.HashPassword(seedPassword, bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	for _, su := range seedUsers {
		u, err := users.FindByEmail(ctx, su.Email)
		if errors.Is(err, appErrors.ErrUserNotFound) {
			u, err = users.CreateUser(ctx, su.Email, su.Name, hash)
			if err == nil {
				fmt.Println("Seeded user:", su.Email)
			}
		}
		if err != nil {
			return fmt.Errorf("user %s: %w", su.Email, err)
		}
		if err := permissions.AssignRoleToUser(ctx, u.ID, roleIDs[su.Role]); err != nil {
			return fmt.Errorf("assign %s to %s: %w", su.Role, su.Email, err)
		}
	}

	for _, dto := range seedPermissions {
		if _, _, err := permissions.CreatePermission(ctx, dto); err != nil {
			return fmt.Errorf("permission %s: %w", dto.Action, err)
		}
	}

	all, err := permissions.AllPermissions(ctx)
	if err != nil {
		return fmt.Errorf("list permissions: %w", err)
	}
	pos := map[string]bool{}
	for _, a := range posActions {
		pos[a] = true
	}
	for _, p := range all {
		if err := permissions.AssignPermissionToRole(ctx, roleIDs["ADMIN"], p.ID); err != nil {
			return fmt.Errorf("grant %s to ADMIN: %w", p.Action, err)
		}
		if pos[p.Action] {
			if err := permissions.AssignPermissionToRole(ctx, roleIDs["POS"], p.ID); err != nil {
				return fmt.Errorf("grant %s to POS: %w", p.Action, err)
			}
		}
	}

	fmt.Printf("Granted %d permissions to ADMIN and %d to POS\n", len(all), len(posActions))
	return nil
}
