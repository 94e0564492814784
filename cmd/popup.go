package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/domain"
	"github.com/siteray/siteray-agent/internal/tui"
)

var popupGateway string

var popupCmd = &cobra.Command{
	Use:   "popup <domain|url>",
	Short: "Show the extension popup for a site in the terminal",
	Long: `Opens the popup view for a site against a running gateway: the trust
score, a running scan, a failed scan or a prompt to scan the site. Logs in
first when the gateway holds no session.`,
	Args: cobra.ExactArgs(1),
	RunE: runPopup,
}

func init() {
	popupCmd.Flags().StringVar(&popupGateway, "gateway", "",
		"gateway URL (default http://127.0.0.1:<gateway.port>)")
}

func runPopup(cmd *cobra.Command, args []string) error {
	d, err := domainArg(args[0])
	if err != nil {
		return err
	}
	base := popupGateway
	if base == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		base = gatewayURL(cfg)
	}
	return tui.Popup(context.Background(), tui.NewClient(base), d)
}

// domainArg accepts a bare hostname or a URL and returns the lookup domain.
func domainArg(arg string) (string, error) {
	raw := strings.TrimSpace(arg)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	d := domain.Extract(raw)
	if d == "" {
		return "", fmt.Errorf("%q is not a public web site", arg)
	}
	return d, nil
}

func gatewayURL(cfg *config.Config) string {
	port := cfg.Gateway.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
