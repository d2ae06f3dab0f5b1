package client

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/storage"
)

func NewBackendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Manage backend configurations",
		Long:  "List, create, remove and test named backend configurations stored in the ledger.",
	}

	cmd.AddCommand(newBackendListCommand())
	cmd.AddCommand(newBackendAddCommand())
	cmd.AddCommand(newBackendRemoveCommand())
	cmd.AddCommand(newBackendTestCommand())

	return cmd
}

func newBackendListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backend configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			configs, err := rt.store.ListBackendConfigs(cmd.Context())
			if err != nil {
				return err
			}

			if len(configs) == 0 {
				fmt.Println("No backend configurations")
				return nil
			}
			for _, c := range configs {
				flags := ""
				if c.IsDefault {
					flags += " default"
				}
				if !c.IsActive {
					flags += " inactive"
				}
				fmt.Printf("%4d  %-8s %-20s %s%s\n", c.ID, c.BackendType, c.Name, c.Bucket, flags)
			}
			return nil
		},
	}
}

func newBackendAddCommand() *cobra.Command {
	cfg := &models.BackendConfig{IsActive: true}

	cmd := &cobra.Command{
		Use:   "add <type> <name>",
		Short: "Create a backend configuration",
		Long:  "Create a named backend configuration. Credentials are stored in the ledger and only ever reported back masked.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !storage.BackendType(args[0]).Valid() || args[0] == string(storage.TypeLocal) {
				return fmt.Errorf("unsupported backend type %q", args[0])
			}
			cfg.BackendType = args[0]
			cfg.Name = args[1]

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.CreateBackendConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			rt.registry.Invalidate()

			fmt.Printf("Created %s configuration %q (id %d)\n", cfg.BackendType, cfg.Name, cfg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "Service endpoint URL")
	cmd.Flags().StringVar(&cfg.Region, "region", "", "Region")
	cmd.Flags().StringVar(&cfg.Bucket, "bucket", "", "Bucket or container name")
	cmd.Flags().StringVar(&cfg.Prefix, "prefix", "", "Key prefix for all objects")
	cmd.Flags().StringVar(&cfg.AccessKey, "access-key", "", "Access key (account name for Azure)")
	cmd.Flags().StringVar(&cfg.SecretKey, "secret-key", "", "Secret key (account key for Azure)")
	cmd.Flags().StringVar(&cfg.ProjectID, "project-id", "", "GCS project id")
	cmd.Flags().StringVar(&cfg.CredentialsJSON, "credentials-json", "", "GCS service account JSON")
	cmd.Flags().StringVar(&cfg.PublicBaseURL, "public-base-url", "", "Base URL for public objects (CDN)")
	cmd.Flags().BoolVar(&cfg.UseSSL, "ssl", true, "Use TLS for the endpoint")
	cmd.Flags().BoolVar(&cfg.UsePathStyle, "path-style", false, "Use path-style S3 addressing")
	cmd.Flags().BoolVar(&cfg.IsDefault, "default", false, "Make this the default configuration for its type")

	return cmd
}

func newBackendRemoveCommand() *cobra.Command {
	var id uint

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a backend configuration",
		Long:  "Remove a backend configuration. Refused while file records still reference it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.DeleteBackendConfig(cmd.Context(), id); err != nil {
				return err
			}
			rt.registry.Invalidate()

			fmt.Printf("Removed backend configuration %d\n", id)
			return nil
		},
	}

	cmd.Flags().UintVar(&id, "id", 0, "Configuration id")
	cmd.MarkFlagRequired("id")

	return cmd
}

func newBackendTestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <type> [name]",
		Short: "Test connectivity of a backend",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 1 {
				name = args[1]
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			backend, err := rt.registry.GetBackend(cmd.Context(), storage.BackendType(args[0]), name)
			if err != nil {
				return err
			}

			if backend.TestConnection(cmd.Context()) {
				fmt.Printf("%s: connection ok\n", backend.Type())
				return nil
			}
			return fmt.Errorf("%s: connection failed", backend.Type())
		},
	}

	return cmd
}
