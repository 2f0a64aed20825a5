package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/backoffice/internal/discovery"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	"github.com/frahmantamala/backoffice/internal/permission"
	permissionPostgres "github.com/frahmantamala/backoffice/internal/permission/postgres"
	"github.com/frahmantamala/backoffice/internal/transport/rest"
	"github.com/frahmantamala/backoffice/internal/user"
	userPostgres "github.com/frahmantamala/backoffice/internal/user/postgres"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

var actionsSpec string

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Permission catalog maintenance",
}

var actionsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register a permission for every operation in the OpenAPI document",
	Long:  `Walk the OpenAPI document and create the "verb:resource" permission of every operation that is not yet in the catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()
		gdb, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		users := user.NewService(userPostgres.NewUserRepository(gdb), lg)
		permissions := permission.NewService(permissionPostgres.NewPermissionRepository(gdb), users, memory.New(0, 0), lg)
		registry := discovery.NewRegistry(permissions, lg, discovery.WithExcludedPrefixes(rest.ExcludedFromDiscovery...))

		spec := actionsSpec
		if spec == "" {
			spec = cfg.Server.OpenAPISpec
		}
		report, err := registry.FromOpenAPI(cmd.Context(), spec)
		if err != nil {
			log.Fatalf("actions sync: %v", err)
		}

		for _, a := range report.Created {
			fmt.Println("created:", a)
		}
		fmt.Printf("%d created, %d already present, %d skipped\n", len(report.Created), len(report.Existing), len(report.Skipped))
	},
}

func init() {
	actionsSyncCmd.Flags().StringVar(&actionsSpec, "spec", "", "OpenAPI document (defaults to http_server.openapi_spec)")
	actionsCmd.AddCommand(actionsSyncCmd)
}
