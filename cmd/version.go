package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the release version stamped at build time.
var Version = "0.2.0"

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orct v%s\n", Version)
	},
}
