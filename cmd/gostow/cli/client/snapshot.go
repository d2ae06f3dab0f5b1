package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage placement snapshots",
		Long:  "Capture, list, restore and delete snapshots of file placement. Snapshots record where each file lives; restoring rewrites the ledger without moving bytes.",
	}

	cmd.AddCommand(newSnapshotCreateCommand())
	cmd.AddCommand(newSnapshotListCommand())
	cmd.AddCommand(newSnapshotRestoreCommand())
	cmd.AddCommand(newSnapshotDeleteCommand())

	return cmd
}

func newSnapshotCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Capture the current placement of every file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			snapshot, err := rt.migrate.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Created snapshot %q covering %d files\n", snapshot.Name, snapshot.FileCount)
			return nil
		},
	}
}

func newSnapshotListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			snapshots, err := rt.migrate.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}

			if len(snapshots) == 0 {
				fmt.Println("No snapshots")
				return nil
			}
			for _, s := range snapshots {
				fmt.Printf("%-30s %6d files  %s\n", s.Name, s.FileCount, s.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newSnapshotRestoreCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Rewrite file placement back to a snapshot",
		Long:  "Rewrite every captured record back to its snapshot placement. Only the ledger changes; bytes at the old locations must still exist.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("restoring rewrites file placement for every captured record, re-run with --confirm")
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			restored, err := rt.migrate.RestoreSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Restored snapshot %q, %d records rewritten\n", args[0], restored)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "confirm", "c", false, "Confirms the restore")

	return cmd
}

func newSnapshotDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.migrate.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Printf("Deleted snapshot %q\n", args[0])
			return nil
		},
	}
}
