package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/SoftwearDevelopment/spynl/internal/registration"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("spynl %s\n", registration.Version)
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		fmt.Printf("  go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("  commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("  built:   %s\n", s.Value)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
