package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/consentgate/internal/controlplane"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Operaciones sobre config.yaml y el control plane",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Valida config.yaml y compila el control plane (policies, mappings, redirect URIs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(cmd.Context(), cfg.ControlPlane.Path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok control_plane=%s version=%s policies=%d scope_mappings=%d users=%d\n",
				cfg.ControlPlane.Path, snap.Version, len(snap.Policies), len(snap.Mappings), len(snap.Users()))
			return nil
		},
	}
	cmd.AddCommand(validate)
	return cmd
}

func loadSnapshot(ctx context.Context, path string) (*controlplane.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return controlplane.NewLoader(controlplane.LoaderDeps{Source: controlplane.FileSource{Path: path}}).Snapshot(ctx)
}
