package main

import (
	"embed"
	"fmt"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/spf13/cobra"
)

//go:embed static
var staticFS embed.FS

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "travel-agent",
	Short: "Keyword-driven travel assistant served over HTTP and WebSocket",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := clay.InitGlazed("travel-agent", rootCmd); err != nil {
		cobra.CheckErr(err)
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	serve, err := NewServeCommand()
	cobra.CheckErr(err)
	command, err := cli.BuildCobraCommand(serve)
	cobra.CheckErr(err)
	rootCmd.AddCommand(command, versionCmd)

	cobra.CheckErr(rootCmd.Execute())
}
