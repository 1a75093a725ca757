package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiced/internal/clock"
)

// harness scripts a whole session: a level function and key events keyed
// by tick index drive the controller through its collaborator interfaces.
type harness struct {
	clk *clock.Fake

	tick   int
	levels func(tick int) float64
	keys   map[int]byte

	// capture state
	startErr     error
	startCalls   int
	stopCalls    int
	pauseCalls   int
	resumeCalls  int
	writing      bool
	devicePaused bool
	writeOffTick int // tick at which writing was last disabled

	// display state
	texts  []string
	colors []string
	closed int

	// downstream collaborators
	transcript      string
	transcribeErr   error
	transcribeCalls int
	pastedText      string
	pastedTarget    FocusTarget
	pastedAlt       bool
	pasteCalls      int
	pasteErr        error
	notifications   []string
	records         []Record
}

func newHarness() *harness {
	return &harness{
		clk:          clock.NewFake(time.Unix(7000, 0)),
		levels:       func(int) float64 { return 0.2 }, // constant voice
		keys:         map[int]byte{},
		writeOffTick: -1,
	}
}

// Capture

func (h *harness) Start(path string) error {
	if h.startErr != nil {
		return h.startErr
	}
	h.startCalls++
	h.devicePaused = false
	return nil
}
func (h *harness) Stop() error { h.stopCalls++; return nil }
func (h *harness) Pause()      { h.pauseCalls++; h.devicePaused = true }
func (h *harness) Resume()     { h.resumeCalls++; h.devicePaused = false }
func (h *harness) Level() float64 {
	return h.levels(h.tick)
}
func (h *harness) SetWriting(enabled bool) {
	if !enabled && h.writing {
		h.writeOffTick = h.tick
	}
	h.writing = enabled
}

// Display

func (h *harness) Show(text string) error { return nil }
func (h *harness) Update(text string, level float64) {
	h.texts = append(h.texts, text)
}
func (h *harness) SetColor(name string) {
	h.colors = append(h.colors, name)
}
func (h *harness) PollKey() (byte, bool) {
	k, ok := h.keys[h.tick]
	h.tick++
	return k, ok
}
func (h *harness) Close() { h.closed++ }

// Transcriber

func (h *harness) Transcribe(ctx context.Context, path string) (string, error) {
	h.transcribeCalls++
	return h.transcript, h.transcribeErr
}

// Paster

func (h *harness) Paste(text string, target FocusTarget, altChord bool) error {
	h.pasteCalls++
	h.pastedText = text
	h.pastedTarget = target
	h.pastedAlt = altChord
	return h.pasteErr
}

// Notifier

func (h *harness) Notify(summary, body string) {
	h.notifications = append(h.notifications, summary)
}

// HistoryRecorder

func (h *harness) Record(rec Record) error {
	h.records = append(h.records, rec)
	return nil
}

func newTestController(h *harness, cfg Config) *Controller {
	if cfg.Tick == 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 5 * time.Minute
	}
	if cfg.VADThreshold == 0 {
		cfg.VADThreshold = 0.05
	}
	if cfg.VADTimeout == 0 {
		cfg.VADTimeout = 2 * time.Second
	}
	cfg.WavPath = "/tmp/voiced-test-session.wav"
	return NewController(cfg, Deps{
		Capture:     h,
		Transcriber: h,
		Display:     h,
		Paster:      h,
		Notifier:    h,
		History:     h,
		Clock:       h.clk,
	})
}

func TestAbortSkipsTranscription(t *testing.T) {
	h := newHarness()
	h.keys[3] = 'a'
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.False(t, res.ExitRequested)
	assert.Zero(t, h.transcribeCalls, "recognizer must never be invoked on abort")
	assert.Zero(t, h.pasteCalls)
	assert.Equal(t, ModeAwaitingTrigger, c.Mode(), "controller re-arms after abort")
	require.Len(t, h.records, 1)
	assert.Equal(t, OutcomeAborted, h.records[0].Outcome)
}

func TestEscapeAborts(t *testing.T) {
	h := newHarness()
	h.keys[1] = 0x1b
	c := newTestController(h, Config{})
	res := c.Run(context.Background(), 0)
	assert.Equal(t, OutcomeAborted, res.Outcome)
}

func TestSilenceAutoPauses(t *testing.T) {
	h := newHarness()
	h.levels = func(int) float64 { return 0.0 } // 25+ ticks of silence
	h.keys[25] = 'a'
	c := newTestController(h, Config{})

	c.Run(context.Background(), 0)

	// Silence timeout is 2000ms at 100ms ticks: write-enable drops at
	// the tick where 2s have accumulated.
	require.GreaterOrEqual(t, h.writeOffTick, 19)
	require.LessOrEqual(t, h.writeOffTick, 21)
	assert.Zero(t, h.pauseCalls, "capture device must keep running during auto pause")
	require.Len(t, h.records, 1)
	assert.Greater(t, h.records[0].AutoPause, time.Duration(0))
}

func TestVoiceResumesFromAutoPause(t *testing.T) {
	h := newHarness()
	h.levels = func(tick int) float64 {
		if tick >= 25 && tick < 30 {
			return 0.3 // speech returns
		}
		return 0.0
	}
	h.keys[40] = 'v'
	h.transcript = "hello"
	c := newTestController(h, Config{})

	c.Run(context.Background(), 0)

	assert.True(t, h.writing, "write-enable restored when voice returns")
	require.Len(t, h.records, 1)
	rec := h.records[0]
	// Auto pause ran from ~2.0s to ~2.5s, then silence re-accumulated
	// from 3.0s and paused again at ~5.0s until 'v' at 4.0s... the key
	// arrives first, so only the two silent stretches count.
	assert.Greater(t, rec.AutoPause, time.Duration(0))
	assert.Less(t, rec.AutoPause, rec.Active+rec.AutoPause)
}

func TestTimeoutThenExtend(t *testing.T) {
	h := newHarness()
	// 1 minute budget at 100ms ticks: timeout at tick 600.
	h.keys[610] = '+'
	h.keys[615] = 's'
	h.transcript = "ok"
	c := newTestController(h, Config{
		MaxDuration: time.Minute,
		ExtendBy:    time.Minute,
	})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomePasted, res.Outcome)
	assert.Equal(t, 1, h.pauseCalls, "device fully paused at timeout")
	assert.Equal(t, 1, h.resumeCalls, "device resumed on extension")
	assert.Contains(t, h.colors, "red", "timeout shows the alert color")
	foundHeader := false
	for _, txt := range h.texts {
		if strings.Contains(txt, "TIME LIMIT REACHED!") {
			foundHeader = true
		}
	}
	assert.True(t, foundHeader)

	require.Len(t, h.records, 1)
	rec := h.records[0]
	assert.Equal(t, 1, rec.Extensions)
	// Ticks 600..610 accumulate into the timeout pause.
	assert.InDelta(t, float64(time.Second), float64(rec.TimeoutPause), float64(200*time.Millisecond))
}

func TestExtendRestoresFullBudget(t *testing.T) {
	h := newHarness()
	h.keys[600] = '+'
	h.keys[601] = 'a'
	c := newTestController(h, Config{
		MaxDuration: time.Minute,
		ExtendBy:    time.Minute,
	})

	// Drive to just past timeout, extend, then inspect the accountant.
	c.Run(context.Background(), 0)

	// After extend the budget is 2 minutes; one minute was consumed
	// before the timeout pause, so a full minute remained at 'a'.
	require.Len(t, h.records, 1)
	assert.Equal(t, 1, h.records[0].Extensions)
}

func TestManualPauseStopsDevice(t *testing.T) {
	h := newHarness()
	h.keys[5] = 'p'
	h.keys[15] = 'p'
	h.keys[20] = 'v'
	h.transcript = "done"
	c := newTestController(h, Config{})

	c.Run(context.Background(), 0)

	assert.Equal(t, 1, h.pauseCalls)
	assert.Equal(t, 1, h.resumeCalls)
	require.Len(t, h.records, 1)
	assert.InDelta(t, float64(time.Second), float64(h.records[0].ManualPause), float64(200*time.Millisecond))
}

func TestManualPauseIgnoredWhenTimedOut(t *testing.T) {
	h := newHarness()
	h.keys[605] = 'p'
	h.keys[620] = 'a'
	c := newTestController(h, Config{MaxDuration: time.Minute})

	c.Run(context.Background(), 0)

	assert.Equal(t, 1, h.pauseCalls, "only the timeout pause touches the device")
	assert.Zero(t, h.resumeCalls)
	require.Len(t, h.records, 1)
	assert.Zero(t, h.records[0].ManualPause)
}

func TestRestartResetsAccounting(t *testing.T) {
	h := newHarness()
	h.keys[100] = 'r' // 10s in
	h.keys[120] = 'v' // 2s after restart
	h.transcript = "fresh"
	c := newTestController(h, Config{})

	c.Run(context.Background(), 0)

	assert.Equal(t, 2, h.startCalls, "capture restarted")
	require.Len(t, h.records, 1)
	// Only the ~2s after the restart count.
	assert.Less(t, h.records[0].Active, 4*time.Second)
}

func TestPasteWithTrailingSpaceAndAltChord(t *testing.T) {
	h := newHarness()
	h.keys[4] = 't'
	h.transcript = "  hello world  "
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), FocusTarget(42))

	assert.Equal(t, OutcomePasted, res.Outcome)
	require.Equal(t, 1, h.pasteCalls)
	assert.Equal(t, "hello world ", h.pastedText, "exactly one trailing space")
	assert.True(t, h.pastedAlt, "'t' selects the alternate chord")
	assert.Equal(t, FocusTarget(42), h.pastedTarget)
	assert.GreaterOrEqual(t, h.closed, 1, "window closes before pasting")
}

func TestPasteOnlyHasNoTrailingSpace(t *testing.T) {
	h := newHarness()
	h.keys[4] = 's'
	h.transcript = "hello"
	c := newTestController(h, Config{})

	c.Run(context.Background(), 0)

	assert.Equal(t, "hello", h.pastedText)
	assert.False(t, h.pastedAlt)
}

func TestEmptyTranscriptionSkipsPaste(t *testing.T) {
	h := newHarness()
	h.keys[4] = 'v'
	h.transcript = "   "
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomeNoSpeech, res.Outcome)
	assert.Zero(t, h.pasteCalls)
	foundNotice := false
	for _, txt := range h.texts {
		if strings.Contains(txt, "No speech detected.") {
			foundNotice = true
		}
	}
	assert.True(t, foundNotice)
}

func TestTranscriptionErrorReArms(t *testing.T) {
	h := newHarness()
	h.keys[4] = 'v'
	h.transcribeErr = errors.New("model exploded")
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Zero(t, h.pasteCalls)
	assert.Equal(t, ModeAwaitingTrigger, c.Mode())
	assert.NotEmpty(t, h.notifications)
}

func TestCaptureStartFailureAbandonsSession(t *testing.T) {
	h := newHarness()
	h.startErr = errors.New("no device")
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomeAbandoned, res.Outcome)
	assert.False(t, res.ExitRequested)
	assert.Zero(t, h.transcribeCalls)
	assert.Equal(t, ModeAwaitingTrigger, c.Mode())
}

func TestExitKeyRequestsExit(t *testing.T) {
	h := newHarness()
	h.keys[2] = 'x'
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomeExit, res.Outcome)
	assert.True(t, res.ExitRequested)
}

func TestContextCancelExits(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestController(h, Config{})

	res := c.Run(ctx, 0)

	assert.True(t, res.ExitRequested)
}

func TestPasteErrorStillCompletesSession(t *testing.T) {
	h := newHarness()
	h.keys[4] = 'v'
	h.transcript = "hello"
	h.pasteErr = errors.New("lost ownership")
	c := newTestController(h, Config{})

	res := c.Run(context.Background(), 0)

	assert.Equal(t, OutcomePasted, res.Outcome, "paste failure does not fail the session")
	assert.NotEmpty(t, h.notifications)
}

func TestStatusColorThresholds(t *testing.T) {
	h := newHarness()
	c := newTestController(h, Config{MaxDuration: 5 * time.Minute})
	c.mode = ModeRecording

	assert.Equal(t, "white", c.statusColor(2*time.Minute))
	assert.Equal(t, "yellow", c.statusColor(45*time.Second))
	assert.Equal(t, "red", c.statusColor(10*time.Second))

	c.mode = ModeManualPaused
	assert.Equal(t, "white", c.statusColor(10*time.Second), "paused is always neutral")

	c.mode = ModeTimedOut
	assert.Equal(t, "red", c.statusColor(10*time.Minute), "timed out is always the alert color")
}
