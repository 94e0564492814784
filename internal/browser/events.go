package browser

// Event is one of TabUpdated, TabActivated, TabRemoved or Installed.
type Event interface {
	event()
}

// TabStatusComplete is the TabUpdated status sent once a page has loaded.
const TabStatusComplete = "complete"

// TabUpdated reports a change to a tab's loading status or URL.
type TabUpdated struct {
	TabID  int    `json:"tabId"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// TabActivated reports that a tab became the active tab of its window.
type TabActivated struct {
	TabID int `json:"tabId"`
}

// TabRemoved reports that a tab was closed.
type TabRemoved struct {
	TabID int `json:"tabId"`
}

// Installed reports that the extension was installed or updated.
type Installed struct {
	// Reason is "install", "update" or "browser_update".
	Reason string `json:"reason"`
}

// InstallReasonInstall marks a first-time installation.
const InstallReasonInstall = "install"

func (TabUpdated) event()   {}
func (TabActivated) event() {}
func (TabRemoved) event()   {}
func (Installed) event()    {}
