package tray

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"screen-region-capture/src/notification"
)

// Config wires tray menu entries to the application.
type Config struct {
	Title     string
	Tooltip   string
	OnCapture func()
	OnRetry   func()
	OnExit    func()
}

// Tray owns the system tray icon and its menu.
type Tray struct {
	cfg  Config
	once sync.Once
}

var (
	stateMu     sync.Mutex
	ready       bool
	tooltip     string
	aboutHotkey string
	aboutExtra  string
)

// New validates cfg. The icon appears once Run is called.
func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		return nil, fmt.Errorf("tray title is required")
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cfg.Title
	}
	return &Tray{cfg: cfg}, nil
}

// Run blocks running the tray message loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Destroy removes the icon. Safe to call more than once.
func (t *Tray) Destroy() {
	t.once.Do(systray.Quit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle(t.cfg.Title)

	stateMu.Lock()
	ready = true
	if tooltip == "" {
		tooltip = t.cfg.Tooltip
	}
	systray.SetTooltip(tooltip)
	stateMu.Unlock()

	mCapture := systray.AddMenuItem("Capture Region", "Select a screen region and copy it")
	mRetry := systray.AddMenuItem("Retry Last Capture", "Capture the last region again")
	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About "+t.cfg.Title)
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				if t.cfg.OnCapture != nil {
					t.cfg.OnCapture()
				}
			case <-mRetry.ClickedCh:
				if t.cfg.OnRetry != nil {
					t.cfg.OnRetry()
				}
			case <-mAbout.ClickedCh:
				notification.ShowNotice("About "+t.cfg.Title, AboutText(t.cfg.Title))
			case <-mQuit.ClickedCh:
				log.Printf("Tray: quit requested")
				t.Destroy()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	stateMu.Lock()
	ready = false
	stateMu.Unlock()
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// UpdateTooltip changes the tooltip; before the tray is ready it is kept for
// onReady.
func UpdateTooltip(text string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	tooltip = text
	if ready {
		systray.SetTooltip(text)
	}
}

// SetAboutHotkey records the configured hotkey for the About dialog.
func SetAboutHotkey(hotkey string) {
	stateMu.Lock()
	aboutHotkey = hotkey
	stateMu.Unlock()
}

// SetAboutExtra appends a line to the About dialog.
func SetAboutExtra(extra string) {
	stateMu.Lock()
	aboutExtra = extra
	stateMu.Unlock()
}

// AboutText builds the About dialog body.
func AboutText(title string) string {
	stateMu.Lock()
	defer stateMu.Unlock()
	lines := []string{title}
	if aboutHotkey != "" {
		lines = append(lines, "Hotkey: "+aboutHotkey)
	}
	lines = append(lines, "Drag to select a region. Esc or right-click cancels.")
	if aboutExtra != "" {
		lines = append(lines, aboutExtra)
	}
	return strings.Join(lines, "\n")
}
