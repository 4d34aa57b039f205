package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	quiet      bool
	colorMode  string
)

var rootCmd = &cobra.Command{
	Use:   "appalyzer",
	Short: "Appalyzer - secret scanner for application packages",
	Long: `Appalyzer searches application packages and directories for secrets such as
API keys, credentials and tokens.

Android packages and jars are decompiled with jadx, .NET assemblies with
ilspycmd, iOS packages are unpacked and their binaries and property lists
converted to text. Every file is then matched against a set of named regular
expressions and the findings are written to a plain-text report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config.ini or ~/.appalyzer/config.ini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "Color output: auto, always, never")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
