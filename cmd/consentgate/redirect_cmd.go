package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRedirectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redirect",
		Short: "Herramientas de redirect URIs",
	}

	var clientID, uri string
	check := &cobra.Command{
		Use:   "check",
		Short: "Verifica si una URI matchea algún redirect registrado del provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" || uri == "" {
				return fmt.Errorf("--client-id y --uri son requeridos")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(cmd.Context(), cfg.ControlPlane.Path)
			if err != nil {
				return err
			}
			m, ok := snap.Matcher(clientID)
			if !ok {
				return fmt.Errorf("unknown client_id %q", clientID)
			}
			rule, ok := m.Match(uri)
			if !ok {
				return fmt.Errorf("no match: %q is not registered for %q (%d rules)", uri, clientID, m.Len())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match %s %s\n", rule.MatchingMode, rule.URL)
			return nil
		},
	}
	check.Flags().StringVar(&clientID, "client-id", "", "client_id del provider")
	check.Flags().StringVar(&uri, "uri", "", "redirect_uri a verificar")
	cmd.AddCommand(check)
	return cmd
}
