package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
	"github.com/petems/nexara-tray/internal/app"
	"github.com/petems/nexara-tray/internal/capture"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/logging"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/rs/zerolog"
)

// Controller is the part of the orchestrator the menu drives.
type Controller interface {
	Toggle()
	Pause() (*capture.Artifact, error)
	Resume() error
	Phase() app.Phase
}

type Settings interface {
	Snapshot() config.Settings
	Update(fn func(*config.Settings)) error
	Path() string
}

type DeviceLister interface {
	EnumerateInputDevices() ([]media.Device, error)
}

type Config struct {
	Settings Settings
	Devices  DeviceLister
	Logger   zerolog.Logger
	Version  string
	Commit   string
	// OnQuit runs when the tray exits.
	OnQuit func()
}

type UI struct {
	app      Controller
	settings Settings
	devices  DeviceLister
	version  string
	commit   string
	log      zerolog.Logger
	onQuit   func()

	mu      sync.Mutex
	status  string
	elapsed int
	lastErr error
	ready   bool

	// Menu items
	mStartStop   *systray.MenuItem
	mPause       *systray.MenuItem
	mSystemAudio *systray.MenuItem
	mDiarization *systray.MenuItem
	mClipboard   *systray.MenuItem
	mMode        *systray.MenuItem
	mDevices     *systray.MenuItem
	mWebhooks    *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle", nil)
}

func (u *UI) SetRecording() {
	u.updateStatus("recording", nil)
}

func (u *UI) SetPaused() {
	u.updateStatus("paused", nil)
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing", nil)
}

func (u *UI) SetSending() {
	u.updateStatus("sending", nil)
}

func (u *UI) SetError(err error) {
	u.updateStatus("error", err)
}

func (u *UI) SetElapsed(seconds int) {
	u.mu.Lock()
	u.elapsed = seconds
	u.mu.Unlock()
	u.render()
}

func New(cfg Config) *UI {
	return &UI{
		settings: cfg.Settings,
		devices:  cfg.Devices,
		version:  cfg.Version,
		commit:   cfg.Commit,
		log:      cfg.Logger.With().Str("component", "tray").Logger(),
		onQuit:   cfg.OnQuit,
		status:   "idle",
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application Controller) {
	u.app = application
}

// Run blocks until the user quits. It must run on the main thread.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	s := u.settings.Snapshot()

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Recording", "Start or stop recording")
	u.mPause = systray.AddMenuItem("Pause", "Pause or resume the recording")
	u.mPause.Disable()
	systray.AddSeparator()

	u.mSystemAudio = systray.AddMenuItemCheckbox("Record System Audio", "Mix the loopback device into the recording", s.Audio.RecordSystemAudio)
	u.mDiarization = systray.AddMenuItemCheckbox("Speaker Diarization", "Label speakers in the transcript", s.Diarization)
	u.mClipboard = systray.AddMenuItemCheckbox("Copy Transcript", "Copy every transcript to the clipboard", s.CopyToClipboard)
	u.mMode = systray.AddMenuItem(modeLabel(s.Mode), "Toggle between modes")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu(s)

	u.mWebhooks = systray.AddMenuItem("Webhook", "Select where transcripts are sent")
	u.buildWebhookMenu(s)

	systray.AddSeparator()
	mSettings := systray.AddMenuItem("Open Settings", "Edit the settings file")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Nexara Tray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()
	u.render()

	// Event loop
	go u.handleEvents(mSettings, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mSettings, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.Toggle()
		case <-u.mPause.ClickedCh:
			u.togglePause()
		case <-u.mSystemAudio.ClickedCh:
			u.toggleSetting(u.mSystemAudio, "system audio", func(s *config.Settings) *bool { return &s.Audio.RecordSystemAudio })
		case <-u.mDiarization.ClickedCh:
			u.toggleSetting(u.mDiarization, "diarization", func(s *config.Settings) *bool { return &s.Diarization })
		case <-u.mClipboard.ClickedCh:
			u.toggleSetting(u.mClipboard, "copy to clipboard", func(s *config.Settings) *bool { return &s.CopyToClipboard })
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-mSettings.ClickedCh:
			u.open(u.settings.Path())
		case <-mLogs.ClickedCh:
			u.open(logging.Path())
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu(s config.Settings) {
	devices, err := u.devices.EnumerateInputDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		label := dev.Label
		if label == "" {
			label = "Microphone " + dev.ID
		}
		item := u.mDevices.AddSubMenuItem(label, "")
		if dev.ID == s.Audio.DeviceID || (s.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				if u.app.Phase() != app.PhaseIdle {
					u.log.Warn().Msg("Cannot change the microphone while recording")
					continue
				}
				if err := u.settings.Update(func(s *config.Settings) { s.Audio.DeviceID = deviceID }); err != nil {
					u.log.Error().Err(err).Msg("Failed to save device")
					continue
				}
				checkOnly(deviceItems, deviceID)
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, label, item)
	}
}

func (u *UI) buildWebhookMenu(s config.Settings) {
	items := make(map[int]*systray.MenuItem)

	for i, preset := range s.Webhooks {
		item := u.mWebhooks.AddSubMenuItem(webhookLabel(preset), preset.URL)
		if i == s.ActiveWebhookIndex {
			item.Check()
		}
		items[i] = item

		go func(index int, name string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				if err := u.settings.Update(func(s *config.Settings) { s.ActiveWebhookIndex = index }); err != nil {
					u.log.Error().Err(err).Msg("Failed to save webhook selection")
					continue
				}
				checkOnly(items, index)
				u.log.Info().Str("webhook", name).Msg("Changed webhook")
			}
		}(i, preset.Name, item)
	}
}

func checkOnly[K comparable](items map[K]*systray.MenuItem, selected K) {
	for k, item := range items {
		if k == selected {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

func (u *UI) togglePause() {
	var err error
	switch u.app.Phase() {
	case app.PhaseRecording:
		_, err = u.app.Pause()
	case app.PhasePaused:
		err = u.app.Resume()
	}
	if err != nil {
		u.log.Error().Err(err).Msg("Pause/resume failed")
	}
}

func (u *UI) toggleSetting(item *systray.MenuItem, name string, field func(*config.Settings) *bool) {
	var enabled bool
	err := u.settings.Update(func(s *config.Settings) {
		p := field(s)
		*p = !*p
		enabled = *p
	})
	if err != nil {
		u.log.Error().Err(err).Str("setting", name).Msg("Failed to save setting")
		return
	}
	if enabled {
		item.Check()
	} else {
		item.Uncheck()
	}
	u.log.Info().Str("setting", name).Bool("enabled", enabled).Msg("Changed setting")
}

func (u *UI) toggleMode() {
	var oldMode, newMode string
	err := u.settings.Update(func(s *config.Settings) {
		oldMode = s.Mode
		if s.Mode == config.ModePushToTalk {
			s.Mode = config.ModeToggle
		} else {
			s.Mode = config.ModePushToTalk
		}
		newMode = s.Mode
	})
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to save mode")
		return
	}
	u.mMode.SetTitle(modeLabel(newMode))
	u.log.Info().Str("from", oldMode).Str("to", newMode).Msg("Changed mode")
}

func (u *UI) open(path string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open file")
		return
	}
	go func() { _ = cmd.Wait() }()
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("Nexara Tray: recordings transcribed by Nexara and sent to your webhook")
}

func (u *UI) onExit() {
	if u.onQuit != nil {
		u.onQuit()
	}
}

func (u *UI) updateStatus(status string, err error) {
	u.mu.Lock()
	u.status = status
	u.lastErr = err
	if status == "idle" {
		u.elapsed = 0
	}
	u.mu.Unlock()
	u.render()
}

// render pushes the current status to the tray. It is a no-op until the
// menu exists.
func (u *UI) render() {
	u.mu.Lock()
	status, elapsed, lastErr, ready := u.status, u.elapsed, u.lastErr, u.ready
	u.mu.Unlock()
	if !ready {
		return
	}

	systray.SetTitle(titleFor(status, elapsed))
	systray.SetTooltip(tooltipFor(status, lastErr))
	u.mStartStop.SetTitle(startStopLabel(status))

	switch status {
	case "recording", "paused":
		u.mStartStop.Enable()
		u.mPause.Enable()
		u.mPause.SetTitle(pauseLabel(status))
	case "processing", "sending":
		u.mStartStop.Disable()
		u.mPause.Disable()
	default:
		u.mStartStop.Enable()
		u.mPause.Disable()
		u.mPause.SetTitle(pauseLabel(status))
	}
}

// titleFor renders the tray title: microphone, status dot and, while
// recording, the elapsed time.
func titleFor(status string, elapsed int) string {
	title := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if status == "recording" || status == "paused" {
		title += " " + formatElapsed(elapsed)
	}
	return title
}

func tooltipFor(status string, err error) string {
	switch status {
	case "recording":
		return "Recording"
	case "paused":
		return "Recording paused"
	case "processing":
		return "Transcribing..."
	case "sending":
		return "Sending to webhook..."
	case "error":
		if err != nil {
			return "Error: " + err.Error()
		}
		return "Error"
	default:
		return "Nexara transcription recorder"
	}
}

func startStopLabel(status string) string {
	if status == "recording" || status == "paused" {
		return "Stop Recording"
	}
	return "Start Recording"
}

func pauseLabel(status string) string {
	if status == "paused" {
		return "Resume"
	}
	return "Pause"
}

func modeLabel(mode string) string {
	if mode == config.ModePushToTalk {
		return "Mode: Push-to-Talk"
	}
	return "Mode: Toggle"
}

func webhookLabel(p config.WebhookPreset) string {
	if p.URL == "" {
		return p.Name + " (not set)"
	}
	return p.Name
}

// formatElapsed renders seconds as MM:SS, or H:MM:SS past an hour.
func formatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "paused":
		return "⏸️"
	case "processing", "sending":
		return "🟡" // Yellow - transcribing or delivering
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
