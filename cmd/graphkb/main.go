// Package main provides the graphkb CLI entry point, grounded on the
// teacher's cmd/nornicdb/main.go cobra root-and-subcommand layout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcgsc/graphkb/pkg/config"
	"github.com/bcgsc/graphkb/pkg/migration"
	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/server"
	"github.com/bcgsc/graphkb/pkg/store"
)

var commit = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphkb",
		Short: "GraphKB - biomedical ontology knowledge base traversal service",
		Long: `graphkb assembles subgraph and virtual-graph views over a
controlled-vocabulary ontology store: similarity-collapsed equivalence
classes, ancestor/descendant/parent/child traversals, and a schema
migration runner consumed as a one-shot startup check.`,
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadFromEnv()
			version := "0.0.0"
			if err == nil {
				version = cfg.BuildVersion
			}
			fmt.Printf("graphkb v%s (%s)\n", version, commit)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graphkb HTTP server",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 8080, "HTTP port")
	cmd.Flags().Bool("skip-migration-check", false, "skip the startup migration check")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending schema migrations against the store",
		RunE:  runMigrate,
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit non-zero if the store requires migration",
		RunE:  runCheck,
	}
}

// openStore opens the Engine named by cfg.StoreDriver.
func openStore(cfg *config.Config) (store.Engine, error) {
	switch cfg.StoreDriver {
	case "badger":
		return store.NewBadgerEngine(store.BadgerOptions{
			DataDir:       cfg.DataDir,
			EncryptionKey: cfg.EncryptionKey,
		})
	default:
		return store.NewMemEngine(), nil
	}
}

// bootstrapRegistry declares the ontology and edge classes named in
// spec.md's glossary and literal end-to-end scenarios: one ontology
// vertex class (Disease) plus the similarity and hierarchy edge classes
// that traversal/subgraph/virtual dispatch against.
func bootstrapRegistry() (*schema.Registry, error) {
	return schema.NewRegistry([]schema.ClassDescriptor{
		{Name: schema.BaseEdgeClass, Abstract: true},
		{Name: "SubClassOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "AliasOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "CrossReferenceOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "DeprecatedBy", Parents: []string{schema.BaseEdgeClass}},
		{Name: "ElementOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "GeneralizationOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "Disease"},
	})
}

// migrationTable is the application's migration step chain. It is not
// exhaustive (spec §4.3); the seed-default-license step stamps the
// GRAPHKB_EULA_ACCEPTED row named in SPEC_FULL.md §9.1, and
// migrate2from2xto3x preserves the source's documented no-op ambiguity.
func migrationTable() []migration.Step {
	return []migration.Step{
		migration.Migrate2From2xTo3x("2.0.0", "3.0.0"),
		{
			Name:       "seed-default-license",
			MinVersion: "3.0.0",
			MaxVersion: "3.1.0",
			Run:        migration.SeedDefaultLicenseStep("seed-default-license", "3.1.0").Run,
		},
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	pool := store.NewPool(engine, cfg.PoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring session: %w", err)
	}
	defer sess.Release()

	runner := migration.NewRunner(migrationTable(), cfg.BuildVersion)
	if err := runner.Migrate(ctx, sess, false); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Printf("store migrated to %s\n", cfg.BuildVersion)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	pool := store.NewPool(engine, cfg.PoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring session: %w", err)
	}
	defer sess.Release()

	runner := migration.NewRunner(migrationTable(), cfg.BuildVersion)
	if err := runner.Migrate(ctx, sess, true); err != nil {
		fmt.Fprintf(os.Stderr, "migration required: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("store is up to date")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	skipCheck, _ := cmd.Flags().GetBool("skip-migration-check")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("starting graphkb v%s\n", cfg.BuildVersion)
	fmt.Printf("  store driver: %s\n", cfg.StoreDriver)
	fmt.Printf("  pool size:    %d\n", cfg.PoolSize)

	engine, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	pool := store.NewPool(engine, cfg.PoolSize)

	reg, err := bootstrapRegistry()
	if err != nil {
		return fmt.Errorf("bootstrapping registry: %w", err)
	}

	if !skipCheck {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
		sess, err := pool.Acquire(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("acquiring session for migration check: %w", err)
		}
		runner := migration.NewRunner(migrationTable(), cfg.BuildVersion)
		checkErr := runner.Migrate(ctx, sess, true)
		sess.Release()
		cancel()
		if checkErr != nil {
			return fmt.Errorf("migration check failed, run `graphkb migrate` first: %w", checkErr)
		}
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	serverConfig.MetricsEnabled = cfg.MetricsEnabled

	srv, err := server.New(pool, reg, serverConfig)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Printf("listening on %s\n", srv.Addr())
	fmt.Println("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	fmt.Println("stopped")
	return nil
}
