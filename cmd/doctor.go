package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/siteray/siteray-agent/internal/auth"
	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/database"
	"github.com/siteray/siteray-agent/internal/notify"
	"github.com/siteray/siteray-agent/models"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify storage, session, API and gateway health",
	Long: `Checks that the database can be reached, a session is stored, the
remote API answers and the local gateway is running.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println("=== siteray doctor ===")
	fmt.Println()

	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", storageLabel(cfg.Database))
		}
		_ = db.Close()
	}

	fmt.Print("Session .................. ")
	switch a, err := storedSession(ctx, cfg); {
	case err != nil:
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	case a == nil:
		fmt.Println("WARN (not logged in, run 'siteray popup <site>' to log in)")
	default:
		fmt.Printf("OK (%s, %s tier)\n", a.User.Email, a.User.Tier)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Print("Remote API ............... ")
	if status, err := probe(ctx, client, cfg.API.BaseURL); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s, HTTP %d)\n", cfg.API.BaseURL, status)
	}

	fmt.Print("Gateway .................. ")
	gw := gatewayURL(cfg)
	if status, err := probe(ctx, client, gw+"/health"); err != nil || status != http.StatusOK {
		fmt.Println("NOT RUNNING (start it with 'siteray gateway')")
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", gw)
	}

	fmt.Print("Notifications ............ ")
	if notify.NewDispatcher(cfg.Notify).IsAnyConfigured() {
		fmt.Println("OK (scan outcomes are sent)")
	} else {
		fmt.Println("disabled (set notify.slack or notify.webhook to enable)")
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed, siteray is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed, see above."))
	}
	return nil
}

func storedSession(ctx context.Context, cfg *config.Config) (*models.StoredAuth, error) {
	kv, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return auth.NewStore(kv).Get(ctx)
}

// probe issues a GET and reports the status code. Any response counts as
// reachable.
func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
