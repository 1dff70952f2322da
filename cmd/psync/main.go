package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psync/psync/pkg/psync"
)

// exitError prints an error message to standard error and terminates the
// process with code.
func exitError(code int, err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(code)
}

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(psync.Version)
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "psync",
	Short: "psync synchronizes a directory tree to a peer using rsync-style delta transfer",
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(syncCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		exitError(1, err)
	}
}
