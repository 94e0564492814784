package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EAB308"))
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "siteray",
	Short: "Website trust scores in your browser toolbar",
	Long: `siteray is the local agent behind the SiteRay browser extension. It looks
up trust scores for the sites you visit, renders the toolbar badge, tracks
running scans until they finish and feeds the on-page trust bar.

Get started:
  siteray config init   Write a default configuration
  siteray doctor        Verify configuration, storage and the remote API
  siteray gateway       Start the agent the extension connects to
  siteray popup         Show the popup for a site in the terminal
  siteray lookup        Print the lookup result for a domain
  siteray icons         Render the toolbar icons to PNG files`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.siteray/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		gatewayCmd,
		popupCmd,
		lookupCmd,
		iconsCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
