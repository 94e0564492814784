// Package tui is the terminal rendition of the extension popup. It talks to
// a running gateway only through the popup message contract.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/siteray/siteray-agent/models"
)

// View is the popup screen shown for the current lookup state.
type View int

const (
	ViewLoading View = iota
	ViewScore
	ViewNotScanned
	ViewProgress
	ViewFailed
)

// pollInterval is how often a running scan is re-checked while the popup is
// open.
const pollInterval = 3 * time.Second

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

// ViewFor picks the screen for a lookup result.
func ViewFor(l *models.LookupResponse) View {
	switch {
	case l == nil:
		return ViewLoading
	case l.RunningScan != nil:
		return ViewProgress
	case l.Scan != nil:
		return ViewScore
	case l.FailedScan != nil:
		return ViewFailed
	default:
		return ViewNotScanned
	}
}

// App is the root bubbletea model of the popup.
type App struct {
	client   *Client
	domain   string
	user     string
	width    int
	height   int
	lookup   *models.LookupResponse
	settings *models.ExtensionSettings
	err      error
	notice   string
	frame    int
	busy     bool

	// LoggedOut is set when the user logged out from the popup.
	LoggedOut bool
}

type (
	lookupMsg struct {
		lookup *models.LookupResponse
		err    error
	}
	settingsMsg struct {
		settings models.ExtensionSettings
		err      error
	}
	scanMsg struct {
		id  string
		err error
	}
	eligibilityMsg struct {
		res models.RescanEligibility
		err error
	}
	logoutMsg struct{ err error }
	pollMsg   struct{}
	spinMsg   struct{}
)

// NewApp creates the popup for one domain. user is shown in the header.
func NewApp(client *Client, domain, user string) *App {
	return &App{client: client, domain: domain, user: user, busy: true}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.lookupCmd(false), a.settingsCmd(), spin())
}

func (a *App) lookupCmd(fresh bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var (
			l   *models.LookupResponse
			err error
		)
		if fresh {
			l, err = a.client.Refresh(ctx, a.domain)
		} else {
			l, err = a.client.Lookup(ctx, a.domain)
		}
		return lookupMsg{lookup: l, err: err}
	}
}

func (a *App) settingsCmd() tea.Cmd {
	return func() tea.Msg {
		s, err := a.client.Settings(context.Background())
		return settingsMsg{settings: s, err: err}
	}
}

func (a *App) scanCmd(rescan bool) tea.Cmd {
	return func() tea.Msg {
		id, err := a.client.Scan(context.Background(), a.domain, rescan)
		return scanMsg{id: id, err: err}
	}
}

func (a *App) eligibilityCmd(scanID string) tea.Cmd {
	return func() tea.Msg {
		res, err := a.client.RescanEligibility(context.Background(), scanID)
		return eligibilityMsg{res: res, err: err}
	}
}

func (a *App) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		return logoutMsg{err: a.client.Logout(context.Background())}
	}
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func spin() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(time.Time) tea.Msg { return spinMsg{} })
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tea.KeyMsg:
		return a, a.handleKey(msg.String())

	case lookupMsg:
		a.busy = false
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.lookup = msg.lookup
		if ViewFor(a.lookup) == ViewProgress {
			return a, poll()
		}

	case settingsMsg:
		if msg.err == nil {
			s := msg.settings
			a.settings = &s
		}

	case scanMsg:
		a.busy = false
		if msg.err != nil {
			a.notice = msg.err.Error()
			return a, nil
		}
		a.notice = ""
		a.lookup = &models.LookupResponse{
			Success:     true,
			RunningScan: &models.RunningScan{ScanID: msg.id, Status: models.ScanQueued},
		}
		return a, poll()

	case eligibilityMsg:
		if msg.err == nil && !msg.res.Eligible {
			a.busy = false
			a.notice = "Rescan not available yet"
			if msg.res.NextAvailableAt != nil {
				a.notice += " (next: " + *msg.res.NextAvailableAt + ")"
			}
			return a, nil
		}
		return a, a.scanCmd(true)

	case logoutMsg:
		if msg.err != nil {
			a.notice = msg.err.Error()
			return a, nil
		}
		a.LoggedOut = true
		return a, tea.Quit

	case pollMsg:
		if ViewFor(a.lookup) == ViewProgress {
			return a, a.lookupCmd(true)
		}

	case spinMsg:
		a.frame = (a.frame + 1) % len(spinnerFrames)
		return a, spin()
	}
	return a, nil
}

func (a *App) handleKey(key string) tea.Cmd {
	switch key {
	case "q", "esc", "ctrl+c":
		return tea.Quit
	case "x":
		return a.logoutCmd()
	}
	if a.busy {
		return nil
	}
	switch key {
	case "f":
		a.busy = true
		return a.lookupCmd(true)
	case "s":
		if ViewFor(a.lookup) == ViewNotScanned {
			a.busy = true
			return a.scanCmd(false)
		}
	case "r":
		switch ViewFor(a.lookup) {
		case ViewScore:
			a.busy = true
			return a.eligibilityCmd(a.lookup.Scan.ID)
		case ViewFailed:
			a.busy = true
			return a.scanCmd(true)
		}
	}
	return nil
}

// View implements tea.Model.
func (a *App) View() string {
	width := a.width
	if width == 0 {
		width = 60
	}
	body := a.renderBody()
	if a.notice != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", errorStyle.Render(a.notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		panelStyle.Width(max(30, width-4)).Render(body),
		a.renderSettings(),
		dimStyle.Render(a.keyHelp()),
	)
}

func (a *App) renderHeader() string {
	parts := []string{titleStyle.Render("SiteRay"), "  ", mutedBadgeStyle.Render(a.domain)}
	if a.user != "" {
		parts = append(parts, "  ", dimStyle.Render(a.user))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (a *App) renderBody() string {
	if a.err != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("Lookup failed"),
			errorStyle.Render(a.err.Error()),
		)
	}
	switch ViewFor(a.lookup) {
	case ViewLoading:
		return spinnerFrames[a.frame] + " Looking up " + a.domain + "..."
	case ViewProgress:
		status := string(a.lookup.RunningScan.Status)
		if status == "" {
			status = string(models.ScanQueued)
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(spinnerFrames[a.frame]+" Scan in progress"),
			dimStyle.Render("status: "+status),
			dimStyle.Render("The toolbar icon updates when the scan completes."),
		)
	case ViewFailed:
		return lipgloss.JoinVertical(lipgloss.Left,
			errorStyle.Render("The last scan of this site failed."),
			dimStyle.Render("Press r to try again."),
		)
	case ViewNotScanned:
		return lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("This site has not been scanned yet."),
			dimStyle.Render("Press s to scan it now."),
		)
	}
	return renderScore(a.lookup.Scan)
}

func renderScore(s *models.ScanSummary) string {
	score := "--"
	if s.TrustScore != nil {
		score = fmt.Sprintf("%d", *s.TrustScore)
	}
	lines := []string{
		lipgloss.JoinHorizontal(lipgloss.Center,
			scoreStyle(s.RiskLevel).Render(score),
			"  ",
			panelHeaderStyle.Render(riskLabel(s.RiskLevel)),
		),
	}
	if s.Verdict != nil && *s.Verdict != "" {
		lines = append(lines, "", *s.Verdict)
	}
	if s.WebsiteType != nil && *s.WebsiteType != "" {
		lines = append(lines, dimStyle.Render("type: "+*s.WebsiteType))
	}
	if s.CompletedAt != nil {
		lines = append(lines, dimStyle.Render("scanned: "+*s.CompletedAt))
	}
	if s.Stale {
		lines = append(lines, dimStyle.Render("This result may be outdated."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func riskLabel(level models.RiskLevel) string {
	switch level {
	case models.RiskGreen:
		return "Looks trustworthy"
	case models.RiskYellow:
		return "Be careful"
	case models.RiskRed:
		return "High risk"
	default:
		return "Unrated"
	}
}

func (a *App) renderSettings() string {
	if a.settings == nil {
		return ""
	}
	bar := "off"
	if a.settings.TrustBarEnabled {
		bar = fmt.Sprintf("%s, %dpx", a.settings.TrustBarPosition, a.settings.TrustBarSize)
	}
	return dimStyle.Render(fmt.Sprintf("icon: %s   trust bar: %s", a.settings.IconDisplayMode, bar))
}

func (a *App) keyHelp() string {
	keys := []string{"f refresh"}
	switch ViewFor(a.lookup) {
	case ViewNotScanned:
		keys = append(keys, "s scan")
	case ViewScore, ViewFailed:
		keys = append(keys, "r rescan")
	}
	keys = append(keys, "x log out", "q quit")
	return strings.Join(keys, "  ")
}
