package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/siteray/siteray-agent/internal/icon"
	"github.com/siteray/siteray-agent/models"
)

var (
	iconsOutDir string
	iconsScore  int
)

var iconsCmd = &cobra.Command{
	Use:   "icons",
	Short: "Render the toolbar icons to PNG files",
	Long: `Writes every toolbar icon the agent can show, at 16, 32 and 48 pixels:
the neutral icon, the failed icon, the three risk symbols, a score in each
risk color and every spinner frame.

Files are named <icon>-<size>.png.`,
	RunE: runIcons,
}

func init() {
	iconsCmd.Flags().StringVarP(&iconsOutDir, "out", "o", "icons", "output directory")
	iconsCmd.Flags().IntVar(&iconsScore, "score", 87, "score drawn on the numeric icons")
}

func runIcons(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(iconsOutDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", iconsOutDir, err)
	}

	sets := map[string]icon.Set{
		"neutral": icon.NeutralSet(),
		"failed":  icon.FailedSet(),
	}
	for _, level := range []models.RiskLevel{models.RiskGreen, models.RiskYellow, models.RiskRed} {
		level := level
		sets["symbol-"+string(level)] = icon.Render(func(size int) *icon.Canvas { return icon.Symbol(size, level) })
		sets["score-"+string(level)] = icon.Render(func(size int) *icon.Canvas { return icon.Score(size, iconsScore, level) })
	}
	for f := 0; f < icon.SpinnerFrames; f++ {
		sets[fmt.Sprintf("spinner-%02d", f)] = icon.SpinnerSet(f)
	}

	n := 0
	for name, set := range sets {
		for _, size := range icon.Sizes {
			data, err := set.PNG(size)
			if err != nil {
				return fmt.Errorf("encoding %s at %dpx: %w", name, size, err)
			}
			path := filepath.Join(iconsOutDir, fmt.Sprintf("%s-%d.png", name, size))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			n++
		}
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Wrote %d icons to %s", n, iconsOutDir)))
	return nil
}
