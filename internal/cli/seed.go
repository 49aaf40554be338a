package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Saiprana/ai-guardrails-system/internal/config"
	"github.com/Saiprana/ai-guardrails-system/internal/store"
)

func newSeedCmd() *cobra.Command {
	var (
		dsn        string
		configFile string
		migrate    bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and load a fixture into Postgres",
		Long: `Load the fixture's employees, users and rules into Postgres, keeping their
ids. Rows that already exist are left untouched.

The DSN defaults to postgres.dsn from the server config, which
GUARDRAILS_POSTGRES_DSN overrides.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				dsn = cfg.Postgres.DSN
			}
			if dsn == "" {
				return fmt.Errorf("--dsn or postgres.dsn is required")
			}
			f, err := loadFixture(cmd)
			if err != nil {
				return fmt.Errorf("failed to load fixture: %w", err)
			}

			db, err := store.Open(cmd.Context(), dsn, store.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			s := store.NewStore(db)

			if migrate {
				if err := s.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			if err := s.Seed(cmd.Context(), store.SeedData{
				Employees: f.DirectoryEmployees(),
				Users:     f.Users,
				Rules:     f.Rules,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d employees, %d users, %d rules\n",
				len(f.Employees), len(f.Users), len(f.Rules))
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to guardrails.yaml")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Create missing tables first")
	return cmd
}
