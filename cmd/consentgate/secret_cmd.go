package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	tokens "github.com/dropDatabas3/consentgate/internal/security/token"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Utilidades para client secrets",
	}

	hash := &cobra.Command{
		Use:   "hash",
		Short: "Genera el bcrypt para providers[].client_secret_hash (lee el secret de stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read secret: %w", err)
			}
			h, err := tokens.HashSecret(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Genera un client secret aleatorio y su hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := tokens.GenerateOpaqueToken(32)
			if err != nil {
				return err
			}
			h, err := tokens.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_secret=%s\nclient_secret_hash=%s\n", secret, h)
			return nil
		},
	}
	cmd.AddCommand(hash, gen)
	return cmd
}
