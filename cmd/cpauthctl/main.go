// Command cpauthctl agrupa las operaciones offline de operadores: generación de
// claves, rotación de ciphertexts, hashes de password y alta del primer admin.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "cpauthctl",
		Short:         "Herramientas de operador para cpauth",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				_ = godotenv.Load(envFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "archivo .env a cargar antes de leer variables")

	root.AddCommand(newKeysCmd())
	root.AddCommand(newSecretsCmd())
	root.AddCommand(newPasswordCmd())
	root.AddCommand(newAdminCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
