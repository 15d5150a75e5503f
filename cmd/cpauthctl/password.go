package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cpauth/internal/bootstrap"
	"github.com/dropDatabas3/cpauth/internal/security/password"
)

func newPasswordCmd() *cobra.Command {
	pwCmd := &cobra.Command{Use: "password", Short: "Utilidades de password"}

	var skipPolicy bool
	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Imprime el hash argon2id (PHC) del password leído de stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := bootstrap.ReadSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !skipPolicy {
				if ok, reasons := password.DefaultPolicy.Validate(plain); !ok {
					return fmt.Errorf("password no cumple la política: %v", reasons)
				}
			}
			h, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	hashCmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "no valida la política de passwords")

	pwCmd.AddCommand(hashCmd)
	return pwCmd
}
