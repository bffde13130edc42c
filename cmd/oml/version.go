package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ohmylinear/oml/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Commit != "" {
			fmt.Printf("oml version %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		} else {
			fmt.Printf("oml version %s\n", version.Version)
		}
	},
}
