package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
)

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{Use: "keys", Short: "Generación de material criptográfico"}

	var kind string
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Genera una clave: kek (SECRETBOX_KEY) o ed25519 (JWT_*_SEED)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				k   string
				err error
			)
			switch kind {
			case "kek":
				k, err = secretbox.GenerateKey()
			case "ed25519":
				k, err = jwt.GenerateSeed()
			default:
				return fmt.Errorf("--kind debe ser kek o ed25519, no %q", kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
	genCmd.Flags().StringVar(&kind, "kind", "kek", "kek | ed25519")

	keysCmd.AddCommand(genCmd)
	return keysCmd
}
