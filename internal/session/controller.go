package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiced/internal/clock"
	"voiced/internal/logging"
	"voiced/internal/vad"
)

// Mode is the controller's current state.
type Mode int

const (
	// ModeAwaitingTrigger means no session is running.
	ModeAwaitingTrigger Mode = iota
	// ModeRecording means audio is being captured and written.
	ModeRecording
	// ModeManualPaused means the user paused with 'p'.
	ModeManualPaused
	// ModeAutoPaused means sustained silence suspended file writing;
	// the capture device keeps running so level sampling continues.
	ModeAutoPaused
	// ModeTimedOut means the time budget ran out; the device is fully
	// paused until the user extends.
	ModeTimedOut
	// ModeFinishing means the session ended and transcription follows.
	ModeFinishing
	// ModeAborted means the session ended with the audio discarded.
	ModeAborted
	// ModeExiting means the user asked the whole daemon to stop.
	ModeExiting
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAwaitingTrigger:
		return "AwaitingTrigger"
	case ModeRecording:
		return "Recording"
	case ModeManualPaused:
		return "ManualPaused"
	case ModeAutoPaused:
		return "AutoPaused"
	case ModeTimedOut:
		return "TimedOut"
	case ModeFinishing:
		return "Finishing"
	case ModeAborted:
		return "Aborted"
	case ModeExiting:
		return "Exiting"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Status-window key bindings.
const (
	keyExtend     = '+'
	keyPauseKey   = 'p'
	keyRestart    = 'r'
	keyPasteSpace = 'v'
	keyPasteOnly  = 's'
	keyTermPaste  = 't'
	keyAbort      = 'a'
	keyExit       = 'x'
	keyEscape     = 0x1b
	keyETX        = 0x03
)

// FocusTarget identifies the window that had input focus before the
// session started. Zero means unknown.
type FocusTarget uint64

// Capture is the audio capture collaborator.
type Capture interface {
	Start(path string) error
	Stop() error
	Pause()
	Resume()
	// Level returns the decayed peak level in [0, 1].
	Level() float64
	// SetWriting gates file writes without stopping the device.
	SetWriting(enabled bool)
}

// Transcriber converts a recorded file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Display is the status window collaborator.
type Display interface {
	Show(text string) error
	// Update redraws the text; a negative level hides the level bar.
	Update(text string, level float64)
	SetColor(name string)
	// PollKey returns at most one pending key event, without blocking.
	PollKey() (byte, bool)
	Close()
}

// Paster delivers text to the focused foreign application.
type Paster interface {
	Paste(text string, target FocusTarget, altChord bool) error
}

// Filter post-processes transcribed text. Implementations degrade to
// returning the input unchanged on any failure.
type Filter interface {
	Apply(ctx context.Context, text string) string
}

// Notifier shows desktop notifications. Implementations must not block
// the tick loop.
type Notifier interface {
	Notify(summary, body string)
}

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomePasted    Outcome = "pasted"
	OutcomeNoSpeech  Outcome = "no_speech"
	OutcomeAborted   Outcome = "aborted"
	OutcomeExit      Outcome = "exit"
	OutcomeError     Outcome = "error"
	OutcomeAbandoned Outcome = "abandoned"
)

// Record summarizes one finished session for the history store.
type Record struct {
	ID           string
	StartedAt    time.Time
	Active       time.Duration
	ManualPause  time.Duration
	TimeoutPause time.Duration
	AutoPause    time.Duration
	Extensions   int
	Outcome      Outcome
	Chars        int
	AltChord     bool
}

// HistoryRecorder persists session records.
type HistoryRecorder interface {
	Record(rec Record) error
}

// Config tunes a controller.
type Config struct {
	// MaxDuration is the active-recording budget per session.
	MaxDuration time.Duration

	// ExtendBy is the amount added per '+' keypress.
	ExtendBy time.Duration

	// VADThreshold and VADTimeout drive the silence auto-pause.
	VADThreshold float64
	VADTimeout   time.Duration

	// Tick is the policy-evaluation interval.
	Tick time.Duration

	// WavPath is where the session audio is written.
	WavPath string

	// ErrorDisplay is how long a transcription error stays on screen.
	ErrorDisplay time.Duration

	// NoticeDisplay is how long the "no speech" notice stays on screen.
	NoticeDisplay time.Duration
}

// Deps are the collaborators injected into a controller. Capture,
// Transcriber, Display, and Paster are required; the rest may be nil.
type Deps struct {
	Capture     Capture
	Transcriber Transcriber
	Display     Display
	Paster      Paster
	Filter      Filter
	Notifier    Notifier
	History     HistoryRecorder
	Clock       clock.Clock
	Log         *logging.Logger
}

// Result reports how Run ended.
type Result struct {
	Outcome       Outcome
	ExitRequested bool
}

// Controller runs one dictation session at a time: trigger to capture to
// per-tick policy evaluation to stop to transcription handoff. It is
// single-threaded and not safe for concurrent Runs.
type Controller struct {
	cfg  Config
	deps Deps
	clk  clock.Clock
	log  *logging.Logger

	mode Mode
	acct *Accountant
	gate *vad.Gate
}

// NewController creates a controller with the given collaborators.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.ErrorDisplay <= 0 {
		cfg.ErrorDisplay = 2 * time.Second
	}
	if cfg.NoticeDisplay <= 0 {
		cfg.NoticeDisplay = time.Second
	}
	if cfg.ExtendBy <= 0 {
		cfg.ExtendBy = cfg.MaxDuration
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Log == nil {
		deps.Log = logging.Default()
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		clk:  deps.Clock,
		log:  deps.Log,
		mode: ModeAwaitingTrigger,
		acct: NewAccountant(cfg.MaxDuration, deps.Clock),
		gate: vad.New(cfg.VADThreshold, cfg.VADTimeout, deps.Clock),
	}
}

// Mode returns the controller's current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Run executes one full session: capture, tick loop, transcription, and
// paste. It always returns with the controller back in AwaitingTrigger;
// every per-session error is absorbed here so the outer trigger loop can
// re-arm. ExitRequested is set when the user pressed the exit key or the
// context was cancelled.
func (c *Controller) Run(ctx context.Context, target FocusTarget) Result {
	id := uuid.NewString()
	log := c.log.With("session", id)

	if err := c.deps.Display.Show("Starting recording..."); err != nil {
		log.Error("status window failed", "error", err)
	}
	defer c.deps.Display.Close()
	defer os.Remove(c.cfg.WavPath)
	defer func() { c.mode = ModeAwaitingTrigger }()

	if err := c.deps.Capture.Start(c.cfg.WavPath); err != nil {
		// Recoverable: abandon this session, the daemon re-arms.
		log.Error("capture start failed", "error", err)
		c.notify("Recording failed", "Could not start the capture device.")
		return Result{Outcome: OutcomeAbandoned}
	}

	c.acct.Begin()
	c.gate.Reset()
	c.deps.Capture.SetWriting(true)
	c.mode = ModeRecording
	log.Info("session started", "budget", c.cfg.MaxDuration)

	appendSpace, altChord := c.tickLoop(ctx, log)

	if err := c.deps.Capture.Stop(); err != nil {
		log.Warn("capture stop failed", "error", err)
	}

	// Resolve a live pause so the totals below are final.
	if r, ok := c.acct.Active(); ok {
		c.acct.Resume(r)
	}

	rec := Record{
		ID:           id,
		StartedAt:    c.acct.StartedAt(),
		Active:       c.acct.ElapsedActive(),
		ManualPause:  c.acct.Total(PauseManual),
		TimeoutPause: c.acct.Total(PauseTimeout),
		AutoPause:    c.acct.Total(PauseAuto),
		Extensions:   c.acct.Extensions(),
		AltChord:     altChord,
	}

	var res Result
	switch c.mode {
	case ModeFinishing:
		rec.Outcome, rec.Chars = c.finish(ctx, log, target, appendSpace, altChord)
		res = Result{Outcome: rec.Outcome}
	case ModeExiting:
		log.Info("exit requested")
		rec.Outcome = OutcomeExit
		res = Result{Outcome: OutcomeExit, ExitRequested: true}
	default:
		log.Info("session aborted")
		rec.Outcome = OutcomeAborted
		res = Result{Outcome: OutcomeAborted}
	}

	c.record(log, rec)
	return res
}

// tickLoop evaluates policy every tick until the session leaves the
// recording states. It reports whether to append a trailing space and
// whether to use the alternate paste chord.
func (c *Controller) tickLoop(ctx context.Context, log *slog.Logger) (appendSpace, altChord bool) {
	for {
		if ctx.Err() != nil {
			c.mode = ModeExiting
			return false, false
		}

		level := c.deps.Capture.Level()

		// Voice activity policy only applies while the device is
		// sampling for it.
		if c.mode == ModeRecording || c.mode == ModeAutoPaused {
			switch c.gate.Observe(level) {
			case vad.EventSilence:
				if c.mode == ModeRecording {
					c.acct.Pause(PauseAuto)
					c.deps.Capture.SetWriting(false)
					c.mode = ModeAutoPaused
					log.Debug("auto-paused on silence")
				}
			case vad.EventVoice:
				if c.mode == ModeAutoPaused {
					c.acct.Resume(PauseAuto)
					c.deps.Capture.SetWriting(true)
					c.mode = ModeRecording
					log.Debug("resumed on voice")
				}
			}
		}

		remaining := c.acct.Remaining()
		if (c.mode == ModeRecording || c.mode == ModeAutoPaused) && remaining <= 0 {
			// Timeout pause resolves a live auto pause first.
			c.acct.Pause(PauseTimeout)
			c.deps.Capture.Pause()
			c.mode = ModeTimedOut
			log.Info("time budget exhausted")
		}

		c.deps.Display.SetColor(c.statusColor(remaining))
		c.deps.Display.Update(c.statusText(remaining), c.displayLevel(level))

		if key, ok := c.deps.Display.PollKey(); ok {
			if done := c.handleKey(key, log); done {
				switch c.mode {
				case ModeFinishing:
					appendSpace = key == keyPasteSpace || key == keyTermPaste
					altChord = key == keyTermPaste
				}
				return appendSpace, altChord
			}
		}

		c.clk.Sleep(c.cfg.Tick)
	}
}

// handleKey applies one status-window key event. It returns true when the
// tick loop should stop.
func (c *Controller) handleKey(key byte, log *slog.Logger) bool {
	switch key {
	case keyExtend:
		c.acct.Extend(c.cfg.ExtendBy)
		log.Info("budget extended", "by", c.cfg.ExtendBy)
		if c.mode == ModeTimedOut {
			c.acct.Resume(PauseTimeout)
			c.deps.Capture.Resume()
			c.gate.Reset()
			c.mode = ModeRecording
		}

	case keyPauseKey:
		switch c.mode {
		case ModeTimedOut:
			// Manual pause is meaningless once timed out.
		case ModeManualPaused:
			c.acct.Resume(PauseManual)
			c.deps.Capture.Resume()
			c.deps.Capture.SetWriting(true)
			c.gate.Reset()
			c.mode = ModeRecording
			log.Debug("manually resumed")
		case ModeRecording, ModeAutoPaused:
			// Switching to manual resolves a live auto pause first.
			c.acct.Pause(PauseManual)
			c.deps.Capture.Pause()
			c.mode = ModeManualPaused
			log.Debug("manually paused")
		}

	case keyRestart:
		if err := c.deps.Capture.Stop(); err != nil {
			log.Warn("capture stop failed on restart", "error", err)
		}
		if err := c.deps.Capture.Start(c.cfg.WavPath); err != nil {
			log.Error("capture restart failed", "error", err)
			c.mode = ModeAborted
			return true
		}
		c.acct.Begin()
		c.gate.Reset()
		c.deps.Capture.SetWriting(true)
		c.mode = ModeRecording
		log.Info("session restarted")

	case keyPasteSpace, keyPasteOnly, keyTermPaste:
		c.mode = ModeFinishing
		return true

	case keyAbort, keyEscape:
		c.mode = ModeAborted
		return true

	case keyExit, keyETX:
		c.mode = ModeExiting
		return true
	}
	return false
}

// finish transcribes the recording, applies the post-process filter, and
// hands the text to the paster. Returns the outcome and pasted length.
func (c *Controller) finish(ctx context.Context, log *slog.Logger, target FocusTarget, appendSpace, altChord bool) (Outcome, int) {
	c.deps.Display.SetColor("white")
	c.deps.Display.Update("Recognition in progress...", -1)

	raw, err := c.deps.Transcriber.Transcribe(ctx, c.cfg.WavPath)
	if err != nil {
		log.Error("transcription failed", "error", err)
		c.notify("Transcription failed", err.Error())
		c.deps.Display.SetColor("red")
		c.deps.Display.Update("Error during transcription!", -1)
		c.clk.Sleep(c.cfg.ErrorDisplay)
		return OutcomeError, 0
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		log.Info("transcription empty, nothing to paste")
		c.deps.Display.Update("No speech detected.", -1)
		c.clk.Sleep(c.cfg.NoticeDisplay)
		return OutcomeNoSpeech, 0
	}

	if c.deps.Filter != nil {
		text = strings.TrimSpace(c.deps.Filter.Apply(ctx, text))
	}
	if appendSpace {
		text += " "
	}

	log.Info("transcribed", "chars", len(text))

	// Close the window before pasting so focus can return to the target.
	c.deps.Display.Close()

	if err := c.deps.Paster.Paste(text, target, altChord); err != nil {
		// The paste step is abandoned but the session is complete.
		log.Error("paste failed", "error", err)
		c.notify("Paste failed", err.Error())
	}
	return OutcomePasted, len(text)
}

// statusColor derives the window background from mode and time left.
func (c *Controller) statusColor(remaining time.Duration) string {
	switch c.mode {
	case ModeTimedOut:
		return "red"
	case ModeManualPaused, ModeAutoPaused:
		return "white"
	}
	switch {
	case remaining < 30*time.Second:
		return "red"
	case remaining < time.Minute:
		return "yellow"
	default:
		return "white"
	}
}

// statusText renders the header and command menu.
func (c *Controller) statusText(remaining time.Duration) string {
	secondsLeft := int(remaining / time.Second)
	if secondsLeft < 0 {
		secondsLeft = 0
	}
	mmss := fmt.Sprintf("%02d:%02d", secondsLeft/60, secondsLeft%60)

	var header string
	switch c.mode {
	case ModeTimedOut:
		header = "TIME LIMIT REACHED!"
	case ModeManualPaused:
		header = fmt.Sprintf("PAUSED - %s remaining", mmss)
	case ModeAutoPaused:
		header = fmt.Sprintf("SILENCE - %s remaining", mmss)
	default:
		header = fmt.Sprintf("RECORDING... %s remaining", mmss)
	}

	return fmt.Sprintf(`%s
----------------------------------
Commands:
  v    Paste + Space
  s    Paste Only
  t    Terminal Paste
  r    Restart Session
  p    Pause / Resume
  +    Extend Time %d min
  a    Abort Transcribing
  x    Exit Program`, header, int(c.cfg.ExtendBy/time.Minute))
}

// displayLevel picks the level-bar value: live while the device writes or
// samples, hidden while fully paused.
func (c *Controller) displayLevel(level float64) float64 {
	if c.mode == ModeRecording || c.mode == ModeAutoPaused {
		return level
	}
	return -1
}

func (c *Controller) notify(summary, body string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Notify(summary, body)
	}
}

func (c *Controller) record(log *slog.Logger, rec Record) {
	if c.deps.History == nil {
		return
	}
	if err := c.deps.History.Record(rec); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("history record failed", "error", err)
	}
}
