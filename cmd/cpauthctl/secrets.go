package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cpauth/internal/bootstrap"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
)

type boxFlags struct {
	key      string
	previous string
}

func (f *boxFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.key, "key", envOr("SECRETBOX_KEY", ""), "clave actual base64 (env SECRETBOX_KEY)")
	cmd.Flags().StringVar(&f.previous, "previous-key", envOr("SECRETBOX_PREVIOUS_KEY", ""), "clave anterior base64 (env SECRETBOX_PREVIOUS_KEY)")
}

func (f *boxFlags) box() (*secretbox.Box, error) {
	cur, err := secretbox.ParseKey(f.key)
	if err != nil {
		return nil, fmt.Errorf("--key: %w", err)
	}
	var prev []byte
	if strings.TrimSpace(f.previous) != "" {
		if prev, err = secretbox.ParseKey(f.previous); err != nil {
			return nil, fmt.Errorf("--previous-key: %w", err)
		}
	}
	return secretbox.New(cur, prev)
}

func newSecretsCmd() *cobra.Command {
	secretsCmd := &cobra.Command{Use: "secrets", Short: "Cifrado de secretos con la KEK"}

	var encFlags boxFlags
	encryptCmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Cifra el valor leído de stdin (sin eco en terminal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := encFlags.box()
			if err != nil {
				return err
			}
			plain, err := bootstrap.ReadSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if plain == "" {
				return fmt.Errorf("valor vacío")
			}
			ct, err := box.EncryptString(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
	encFlags.bind(encryptCmd)

	var (
		decFlags boxFlags
		show     bool
	)
	decryptCmd := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Verifica que un ciphertext abre con las claves dadas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := decFlags.box()
			if err != nil {
				return err
			}
			pt, err := box.DecryptString(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if show {
				fmt.Fprintln(cmd.OutOrStdout(), pt)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	decFlags.bind(decryptCmd)
	decryptCmd.Flags().BoolVar(&show, "show", false, "imprime el plaintext")

	var (
		rwFlags boxFlags
		newKey  string
	)
	rewrapCmd := &cobra.Command{
		Use:   "rewrap",
		Short: "Re-cifra bajo --new-key cada ciphertext leído de stdin (uno por línea)",
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := rwFlags.box()
			if err != nil {
				return err
			}
			nk, err := secretbox.ParseKey(newKey)
			if err != nil {
				return fmt.Errorf("--new-key: %w", err)
			}
			return rewrapLines(box, nk, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	rwFlags.bind(rewrapCmd)
	rewrapCmd.Flags().StringVar(&newKey, "new-key", "", "clave destino base64")

	secretsCmd.AddCommand(encryptCmd, decryptCmd, rewrapCmd)
	return secretsCmd
}

// rewrapLines procesa todo stdin; una línea que no abre corta con el número de línea
// y no se escribe salida parcial de esa línea.
func rewrapLines(box *secretbox.Box, newKey []byte, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ct, err := box.RewrapCiphertext(line, newKey)
		if err != nil {
			return fmt.Errorf("línea %d: %w", n, err)
		}
		fmt.Fprintln(out, ct)
	}
	return sc.Err()
}
