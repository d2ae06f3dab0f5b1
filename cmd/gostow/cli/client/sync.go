package client

import (
	"github.com/spf13/cobra"

	"github.com/mwantia/gostow/pkg/engine"
	"github.com/mwantia/gostow/pkg/storage"
)

func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run sync batches against the file ledger",
		Long:  "Run sync batches that move pending files to their target backend, retry failures or verify already-synced files.",
	}

	cmd.AddCommand(newSyncRunCommand())

	return cmd
}

func newSyncRunCommand() *cobra.Command {
	var mode string
	var batchSize int
	var target string
	var configName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync batch",
		Long:  "Run one bounded sync batch, oldest uploads first. Per-file failures are reported without aborting the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.sync.RunBatch(cmd.Context(), engine.SyncOptions{
				Mode:             engine.SyncMode(mode),
				BatchSize:        batchSize,
				TargetBackend:    storage.BackendType(target),
				TargetConfigName: configName,
			})
			if err != nil {
				return err
			}

			printBatchResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "pending", "batch mode (pending, failed, verify, all)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Maximum files per batch (0 uses the configured default)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Target backend type (defaults to the configured backend)")
	cmd.Flags().StringVarP(&configName, "config-name", "n", "", "Named backend configuration to use")

	return cmd
}
