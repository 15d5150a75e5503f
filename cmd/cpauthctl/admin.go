package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cpauth/internal/bootstrap"
	"github.com/dropDatabas3/cpauth/internal/config"
	"github.com/dropDatabas3/cpauth/internal/store/pg"
	"github.com/dropDatabas3/cpauth/migrations"
)

func newAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{Use: "admin", Short: "Operadores de plataforma"}

	var (
		configPath string
		email      string
		migrate    bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Crea el primer operador en el directorio Postgres (interactivo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("admin create requiere database.driver=postgres")
			}

			ctx := context.Background()
			st, err := pg.New(ctx, pg.Config{DSN: cfg.Database.DSN, MaxConns: 2})
			if err != nil {
				return err
			}
			defer st.Close()
			if migrate {
				if _, err := st.Migrate(ctx, migrations.PostgresFS, migrations.PostgresDir); err != nil {
					return err
				}
			}

			created, err := bootstrap.CheckAndCreateAdmin(ctx, bootstrap.AdminBootstrapConfig{
				Directory:  st,
				Policy:     cfg.PasswordPolicy(),
				AdminEmail: email,
				In:         cmd.InOrStdin(),
				Out:        cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), "el operador ya existe; sin cambios")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "operador creado")
			return nil
		},
	}
	createCmd.Flags().StringVar(&configPath, "config", "", "ruta al config.yaml")
	createCmd.Flags().StringVar(&email, "email", "", "email del operador (si no, se pregunta)")
	createCmd.Flags().BoolVar(&migrate, "migrate", false, "aplica migraciones antes de crear")

	adminCmd.AddCommand(createCmd)
	return adminCmd
}
