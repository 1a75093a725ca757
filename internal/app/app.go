// Package app runs the voiced daemon: wait for the hotkey gesture,
// capture the focused window, run one dictation session, paste the
// transcript, and re-arm. Config changes land between sessions.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiced/internal/asr"
	"voiced/internal/clipboard"
	"voiced/internal/clock"
	"voiced/internal/config"
	"voiced/internal/gesture"
	"voiced/internal/logging"
	"voiced/internal/notify"
	"voiced/internal/postproc"
	"voiced/internal/record"
	"voiced/internal/session"
	"voiced/internal/statuswin"
	"voiced/internal/store"
	"voiced/internal/x11"
)

// App wires the daemon together and owns long-lived resources.
type App struct {
	loader *config.Loader
	log    *logging.Logger
	clk    clock.Clock

	display  *x11.Display
	notifier *notify.Notifier
	history  *store.Store
}

// New creates the daemon. The loader must already have loaded a valid
// config.
func New(loader *config.Loader, log *logging.Logger) *App {
	return &App{loader: loader, log: log, clk: clock.System()}
}

// Run is the daemon main loop. It returns when ctx is canceled or the
// user requests exit from a session.
func (a *App) Run(ctx context.Context) error {
	cfg := a.loader.Config()

	display, err := x11.Open()
	if err != nil {
		return fmt.Errorf("connect to X server: %w", err)
	}
	a.display = display
	defer display.Close()

	a.notifier = notify.New(cfg.Notifications.Enabled, a.log)
	defer a.notifier.Close()

	if cfg.Storage.Enabled {
		st, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		a.history = st
		defer st.Close()
	}

	if err := a.loader.Watch(); err != nil {
		a.log.Warn("config hot reload unavailable", "error", err)
	}
	a.loader.OnChange(func(c *config.Config) {
		a.log.Info("configuration reloaded", "trigger_key", c.Trigger.Key)
	})

	a.log.Info("voiced ready",
		"trigger_key", cfg.Trigger.Key,
		"asr_endpoint", cfg.ASR.Endpoint)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		// Re-read config each arm cycle so edits apply at the next
		// session, never mid-session.
		cfg = a.loader.Config()

		poller, err := a.display.KeyPoller(cfg.Trigger.Key)
		if err != nil {
			return fmt.Errorf("resolve trigger key: %w", err)
		}
		det := gesture.New(poller, gesture.Config{
			DoubleTap:    time.Duration(cfg.Trigger.DoubleTapMs) * time.Millisecond,
			PollInterval: time.Duration(cfg.Trigger.PollMs) * time.Millisecond,
		}, a.clk, a.log)

		if err := det.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gesture wait: %w", err)
		}

		target := session.FocusTarget(a.display.CurrentFocus())
		result := a.runSession(ctx, cfg, target)
		a.log.Info("session finished", "outcome", result.Outcome)
		if result.ExitRequested {
			return nil
		}
	}
}

func (a *App) runSession(ctx context.Context, cfg *config.Config, target session.FocusTarget) session.Result {
	wavPath := sessionWavPath(cfg.Audio.TempDir)

	recorder := record.New(record.Config{
		SampleRate:  cfg.Audio.SampleRate,
		DeviceIndex: cfg.Audio.DeviceIndex,
	}, a.log)

	transcriber := asr.New(asr.Config{
		Endpoint:       cfg.ASR.Endpoint,
		Model:          cfg.ASR.Model,
		Language:       cfg.ASR.Language,
		Prompt:         cfg.ASR.Prompt,
		TextPath:       cfg.ASR.TextPath,
		Timeout:        time.Duration(cfg.ASR.TimeoutSec) * time.Second,
		MaxRetries:     cfg.ASR.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.ASR.RetryBaseDelayMs) * time.Millisecond,
	}, nil, a.clk, a.log)

	paster := clipboard.New(a.display.SelectionConn(), clipboard.Config{
		Settle:        time.Duration(cfg.Paste.SettleMs) * time.Millisecond,
		ServeDeadline: time.Duration(cfg.Paste.ServeTimeoutMs) * time.Millisecond,
	}, a.clk, a.log)

	filter := postproc.New(cfg.PostProcess.Command,
		time.Duration(cfg.PostProcess.TimeoutSec)*time.Second, a.log)

	deps := session.Deps{
		Capture:     recorder,
		Transcriber: transcriber,
		Display:     statuswin.New(a.log),
		Paster:      pasteAdapter{paster},
		Filter:      filter,
		Notifier:    a.notifier,
		Clock:       a.clk,
		Log:         a.log,
	}
	if a.history != nil {
		deps.History = a.history
	}

	ctl := session.NewController(session.Config{
		MaxDuration:  time.Duration(cfg.Session.MaxRecordMin) * time.Minute,
		ExtendBy:     time.Duration(cfg.ExtendAmount()) * time.Minute,
		VADThreshold: cfg.VAD.Threshold,
		VADTimeout:   time.Duration(cfg.VAD.SilenceTimeoutMs) * time.Millisecond,
		Tick:         time.Duration(cfg.Session.TickMs) * time.Millisecond,
		WavPath:      wavPath,
	}, deps)

	return ctl.Run(ctx, target)
}

// pasteAdapter bridges the controller's focus-target type to the
// clipboard handoff, which deals in raw window ids.
type pasteAdapter struct {
	h *clipboard.Handoff
}

func (p pasteAdapter) Paste(text string, target session.FocusTarget, altChord bool) error {
	return p.h.Paste(text, uint64(target), altChord)
}

func sessionWavPath(tempDir string) string {
	dir := tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return filepath.Join(dir, fmt.Sprintf("voiced_%s.wav", id))
}
