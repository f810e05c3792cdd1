package cmd

import (
	"github.com/spf13/cobra"

	buildsyscmd "github.com/JacobCoffee/python-source-builds/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "tool",
	Short: "Build tools for python-source-builds",
	Long: `This command bundles the tools that drive the python-source-builds dev
workflow. This includes the task runner, helpers the task scripts shell out
to and a scaffolder for new applets.`,
}

func init() {
	rootCmd.AddCommand(buildsyscmd.RootCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
