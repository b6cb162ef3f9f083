package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"reading-club-system/config"
	"reading-club-system/services"
	"reading-club-system/storage"

	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or move stored club snapshots",
	}
	cmd.AddCommand(newSnapshotShowCmd(), newSnapshotMigrateCmd())
	return cmd
}

func newSnapshotShowCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, err := storage.Open(ctx, cfg.Storage(backend))
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Load(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Storage backend to read (default: STORAGE_BACKEND)")
	return cmd
}

func newSnapshotMigrateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the stored snapshot to another backend",
		Example: `  # move from the JSON file to Postgres
  clubbot snapshot migrate --to postgres`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return migrate(commandContext(cmd), cfg, from, to, cmd)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source backend (default: STORAGE_BACKEND)")
	cmd.Flags().StringVar(&to, "to", "", "Destination backend: file, redis, postgres or r2")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func migrate(ctx context.Context, cfg *config.Config, from, to string, cmd *cobra.Command) error {
	src, err := storage.Open(ctx, cfg.Storage(from))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	dst, err := storage.Open(ctx, cfg.Storage(to))
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load source snapshot: %w", err)
	}
	// Restoring first rejects snapshots this build cannot read.
	club := services.NewClub(cfg.Club(), services.NopNotifier{}, nil)
	if err := club.Restore(snap); err != nil {
		return err
	}
	if err := dst.Save(ctx, snap); err != nil {
		return fmt.Errorf("save destination snapshot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "copied snapshot taken %s: %d members, %d submissions, %d duels\n",
		snap.TakenAt.Format("2006-01-02 15:04:05"), len(snap.Members), len(snap.Submissions), len(snap.Duels))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
