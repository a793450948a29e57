package main

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/cache"
	"github.com/spf13/cobra"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove cached archives and release metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			store := cache.New(cfg.CacheDir)
			lock, err := store.Lock()
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()
			if err := store.Clean(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s Removed %s\n", successIcon, pathStyle.Render(cfg.CacheDir))
			return nil
		},
	})

	return cmd
}
