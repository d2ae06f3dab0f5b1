package client

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mwantia/gostow/pkg/engine"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Plan and run bulk migrations between backends",
		Long:  "Plan, execute, verify and roll back bulk file migrations between storage backends.",
	}

	cmd.AddCommand(newMigratePlanCommand())
	cmd.AddCommand(newMigrateRunCommand())
	cmd.AddCommand(newMigrateVerifyCommand())
	cmd.AddCommand(newMigrateRollbackCommand())
	cmd.AddCommand(newMigrateStatusCommand())

	return cmd
}

func criteriaFlags(cmd *cobra.Command, criteria *migrateCriteriaFlags) {
	cmd.Flags().StringVar(&criteria.from, "from", "", "Source backend type")
	cmd.Flags().StringVar(&criteria.to, "to", "", "Target backend type")
	cmd.Flags().StringVar(&criteria.configName, "config-name", "", "Named target backend configuration")
	cmd.Flags().StringSliceVar(&criteria.entityTypes, "entity-type", nil, "Restrict to entity types")
	cmd.Flags().StringVar(&criteria.mimePattern, "mime", "", "Restrict to a mime pattern (e.g. image/*)")
	cmd.Flags().IntVar(&criteria.olderThanDays, "older-than", 0, "Restrict to files uploaded more than N days ago")
}

type migrateCriteriaFlags struct {
	from          string
	to            string
	configName    string
	entityTypes   []string
	mimePattern   string
	olderThanDays int
}

func (f migrateCriteriaFlags) criteria() engine.Criteria {
	c := engine.Criteria{
		SourceBackend:    f.from,
		TargetBackend:    f.to,
		TargetConfigName: f.configName,
		EntityTypes:      f.entityTypes,
		MimePattern:      f.mimePattern,
	}
	if f.olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -f.olderThanDays)
		c.UploadedBefore = &cutoff
	}
	return c
}

func newMigratePlanCommand() *cobra.Command {
	var flags migrateCriteriaFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Estimate a migration without moving bytes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			plan, err := rt.migrate.Plan(cmd.Context(), flags.criteria())
			if err != nil {
				return err
			}

			fmt.Printf("Files:          %d\n", plan.FileCount)
			fmt.Printf("Estimated size: %s (sampled %d files)\n",
				humanize.IBytes(uint64(plan.EstimatedTotalSize)), plan.SampleSize)
			fmt.Printf("Estimated time: %s\n", plan.EstimatedTime.Round(time.Second))
			fmt.Printf("Estimated cost: $%.2f\n", plan.EstimatedCost)
			return nil
		},
	}

	criteriaFlags(cmd, &flags)
	return cmd
}

func newMigrateRunCommand() *cobra.Command {
	var flags migrateCriteriaFlags
	var opts engine.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one migration batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.migrate.Execute(cmd.Context(), flags.criteria(), opts)
			if err != nil {
				return err
			}

			if opts.DryRun {
				fmt.Println("Dry run, nothing was moved:")
			}
			printBatchResult(result)
			fmt.Printf("Moved:     %s\n", humanize.IBytes(uint64(result.TotalSize)))
			return nil
		},
	}

	criteriaFlags(cmd, &flags)
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Maximum files per batch (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report candidates without moving anything")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "Verify written size after each copy")
	cmd.Flags().BoolVar(&opts.DeleteSource, "delete-source", false, "Delete source objects after successful copies")

	return cmd
}

func newMigrateVerifyCommand() *cobra.Command {
	var flags migrateCriteriaFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify files recorded on the target backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.migrate.Verify(cmd.Context(), flags.criteria())
			if err != nil {
				return err
			}

			fmt.Printf("Checked: %d\n", result.Checked)
			fmt.Printf("Valid:   %d\n", result.Valid)
			fmt.Printf("Invalid: %d\n", result.Invalid)
			for id, msg := range result.Errors {
				fmt.Printf("  file %d: %s\n", id, msg)
			}
			return nil
		},
	}

	criteriaFlags(cmd, &flags)
	return cmd
}

func newMigrateRollbackCommand() *cobra.Command {
	var flags migrateCriteriaFlags
	var opts engine.Options

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Move files back to their recorded origin backend",
		Long:  "Move files off a backend back to the origin recorded in their metadata. Files without a recorded origin are reported and left in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.migrate.Rollback(cmd.Context(), flags.criteria(), opts)
			if err != nil {
				return err
			}

			printBatchResult(result)
			return nil
		},
	}

	criteriaFlags(cmd, &flags)
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Maximum files per batch (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.DeleteSource, "delete-source", false, "Delete objects from the rolled-back backend after copying")

	return cmd
}

func newMigrateStatusCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration progress toward a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			progress, err := rt.migrate.Progress(cmd.Context(), target)
			if err != nil {
				return err
			}
			eta, err := rt.migrate.EstimateTimeRemaining(cmd.Context(), target)
			if err != nil {
				return err
			}

			total := progress.OnTarget + progress.Remaining
			pct := 0.0
			if total > 0 {
				pct = float64(progress.OnTarget) / float64(total) * 100
			}
			fmt.Printf("On %s:     %d of %d files (%.1f%%)\n", target, progress.OnTarget, total, pct)
			fmt.Printf("Remaining: %d files, ~%s\n", progress.Remaining, eta.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "Target backend type")
	cmd.MarkFlagRequired("to")

	return cmd
}
