package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/siteray/siteray-agent/internal/background"
	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/models"
)

var lookupOutputFmt string

var lookupCmd = &cobra.Command{
	Use:   "lookup <domain|url>",
	Short: "Print the lookup result for a domain",
	Long: `Looks a domain up with the stored session, without a running gateway,
and prints the result together with the trust bar data it would produce.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().StringVarP(&lookupOutputFmt, "output", "o", "yaml", "Output format: yaml|json")
}

// lookupReport is what siteray lookup prints.
type lookupReport struct {
	Domain string                 `json:"domain"             yaml:"domain"`
	Lookup *models.LookupResponse `json:"lookup,omitempty"   yaml:"lookup,omitempty"`
	Bar    *models.TrustBarData   `json:"trustBar,omitempty" yaml:"trust_bar,omitempty"`
	Error  string                 `json:"error,omitempty"    yaml:"error,omitempty"`
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	d, err := domainArg(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	kv, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	coord, err := background.New(background.Deps{
		Config: *cfg,
		Host:   browser.NewMemory(),
		KV:     kv,
	})
	if err != nil {
		return err
	}

	report := lookupReport{Domain: d}
	switch res := coord.Handle(ctx, messages.GetLookup{Domain: d}).(type) {
	case *models.LookupResponse:
		report.Lookup = res
		if bar, ok := coord.Handle(ctx, messages.GetBarData{Domain: d}).(*models.TrustBarData); ok {
			report.Bar = bar
		}
	case messages.Result:
		report.Error = res.Error
	}
	return writeReport(os.Stdout, lookupOutputFmt, report)
}

func writeReport(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (valid: yaml, json)", format)
	}
}
