package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set by the release tooling; it stays "dev" in source checkouts.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the corefish version",
	GroupID: groupSetup,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("corefish " + version)
		return nil
	},
}
