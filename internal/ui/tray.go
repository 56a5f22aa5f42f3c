// Package ui is the system tray surface: a status readout and a quit
// action for the headless engine process.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
)

type Tray struct {
	logger *slog.Logger

	statusItem *systray.MenuItem
	assetsItem *systray.MenuItem
	exportItem *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

// Run blocks on the platform tray loop. It must be called from the main
// goroutine on platforms that require it.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("ClipForge")
	systray.SetTooltip("ClipForge Engine")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current engine status")
	t.statusItem.Disable()

	t.assetsItem = systray.AddMenuItem("Assets: 0", "Imported media assets")
	t.assetsItem.Disable()

	t.exportItem = systray.AddMenuItem("No export running", "Export progress")
	t.exportItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ClipForge Engine")

	go func() {
		for range quitItem.ClickedCh {
			t.logger.Info("quit requested from tray")
			if t.onQuit != nil {
				t.onQuit()
			}
			systray.Quit()
			return
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem != nil {
		t.statusItem.SetTitle("Status: " + status)
	}
}

func (t *Tray) UpdateAssetsCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.assetsItem != nil {
		t.assetsItem.SetTitle(fmt.Sprintf("Assets: %d", count))
	}
}

// UpdateExport shows the active export's stage and progress, or resets
// the line when stage is empty.
func (t *Tray) UpdateExport(stage string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exportItem == nil {
		return
	}
	if stage == "" {
		t.exportItem.SetTitle("No export running")
		return
	}
	t.exportItem.SetTitle(fmt.Sprintf("Export: %s %d%%", stage, progress))
}

func (t *Tray) Quit() {
	systray.Quit()
}
