package main

import (
	"fmt"
	"os"

	"github.com/mwantia/gostow/cmd/gostow/cli"
	"github.com/mwantia/gostow/cmd/gostow/cli/client"
	"github.com/mwantia/gostow/cmd/gostow/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewVersionCommand())

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())

	root.AddCommand(client.NewSyncCommand())
	root.AddCommand(client.NewMigrateCommand())
	root.AddCommand(client.NewSnapshotCommand())
	root.AddCommand(client.NewBackendCommand())
	root.AddCommand(client.NewStatusCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
