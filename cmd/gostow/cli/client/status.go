package client

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-backend storage totals",
		Long:  "Show file counts, sizes and sync state per backend, with optional connectivity probing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			infos, err := rt.migrate.StorageInfo(cmd.Context(), probe)
			if err != nil {
				return err
			}

			for _, info := range infos {
				name := info.BackendType
				if info.ConfigName != "" {
					name = fmt.Sprintf("%s/%s", info.BackendType, info.ConfigName)
				}
				fmt.Printf("%-24s %6d files  %10s  %d synced, %d failed",
					name, info.FileCount, humanize.IBytes(uint64(info.TotalSize)),
					info.SyncedCount, info.FailedCount)
				if info.Reachable != nil {
					if *info.Reachable {
						fmt.Print("  [reachable]")
					} else {
						fmt.Print("  [unreachable]")
					}
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Probe connectivity of every configured backend")

	return cmd
}
