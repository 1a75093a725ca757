// Package statuswin renders the on-screen session status: the
// countdown header, the command menu, and a live input level bar. Keys
// pressed while the window has focus are queued for the session
// controller to poll.
package statuswin

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"gioui.org/app"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"voiced/internal/logging"
)

var palette = map[string]color.NRGBA{
	"red":    {R: 0xff, G: 0x50, B: 0x50, A: 0xff},
	"yellow": {R: 0xff, G: 0xdc, B: 0x64, A: 0xff},
	"white":  {R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff},
}

var background = color.NRGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xff}

// Window is the status overlay for one dictation session. It
// implements session.Display.
type Window struct {
	log *logging.Logger

	mu    sync.Mutex
	text  string
	color color.NRGBA
	level float64

	keys chan byte
	win  *app.Window
	done chan struct{}
}

// New creates a window. Nothing is shown until Show.
func New(log *logging.Logger) *Window {
	return &Window{
		log:   log,
		color: palette["white"],
		level: -1,
		keys:  make(chan byte, 16),
	}
}

// Show opens the window and starts its render loop.
func (w *Window) Show(text string) error {
	w.mu.Lock()
	w.text = text
	w.mu.Unlock()

	w.win = new(app.Window)
	w.win.Option(app.Title("voiced"))
	w.win.Option(app.Size(unit.Dp(420), unit.Dp(260)))
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		if err := w.loop(); err != nil {
			w.log.Warn("status window closed with error", "error", err)
		}
	}()
	return nil
}

// Update replaces the displayed text and level. A negative level hides
// the level bar.
func (w *Window) Update(text string, level float64) {
	w.mu.Lock()
	w.text = text
	w.level = level
	w.mu.Unlock()
	if w.win != nil {
		w.win.Invalidate()
	}
}

// SetColor selects the text color by name (red, yellow, white).
func (w *Window) SetColor(name string) {
	c, ok := palette[name]
	if !ok {
		c = palette["white"]
	}
	w.mu.Lock()
	w.color = c
	w.mu.Unlock()
	if w.win != nil {
		w.win.Invalidate()
	}
}

// PollKey returns one queued keypress without blocking.
func (w *Window) PollKey() (byte, bool) {
	select {
	case k := <-w.keys:
		return k, true
	default:
		return 0, false
	}
}

// Close dismisses the window and waits for its loop to exit.
func (w *Window) Close() {
	if w.win == nil {
		return
	}
	w.win.Perform(system.ActionClose)
	<-w.done
	w.win = nil
}

func (w *Window) loop() error {
	th := material.NewTheme()

	var ops op.Ops
	for {
		switch e := w.win.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			w.handleKeys(gtx)
			w.layout(gtx, th)
			e.Frame(gtx.Ops)
		}
	}
}

func (w *Window) handleKeys(gtx layout.Context) {
	for {
		ev, ok := gtx.Event(key.Filter{Focus: w})
		if !ok {
			break
		}
		ke, ok := ev.(key.Event)
		if !ok || ke.State != key.Press {
			continue
		}
		if b, ok := keyByte(ke); ok {
			select {
			case w.keys <- b:
			default:
				// A full queue means the controller stalled; drop the key.
			}
		}
	}
	event.Op(gtx.Ops, w)
	gtx.Execute(key.FocusCmd{Tag: w})
}

// keyByte maps a key event to the controller's key alphabet.
func keyByte(ke key.Event) (byte, bool) {
	switch ke.Name {
	case key.NameEscape:
		return 0x1b, true
	case "+":
		return '+', true
	case "=":
		if ke.Modifiers.Contain(key.ModShift) {
			return '+', true
		}
		return 0, false
	}
	if len(ke.Name) == 1 {
		c := ke.Name[0]
		if c >= 'A' && c <= 'Z' {
			return c - 'A' + 'a', true
		}
		if c >= 'a' && c <= 'z' {
			return c, true
		}
	}
	return 0, false
}

func (w *Window) layout(gtx layout.Context, th *material.Theme) layout.Dimensions {
	w.mu.Lock()
	text := w.text
	textColor := w.color
	level := w.level
	w.mu.Unlock()

	paint.Fill(gtx.Ops, background)

	return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return w.layoutText(gtx, th, text, textColor)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return w.layoutLevelBar(gtx, level)
			}),
		)
	})
}

func (w *Window) layoutText(gtx layout.Context, th *material.Theme, text string, c color.NRGBA) layout.Dimensions {
	lines := strings.Split(text, "\n")
	children := make([]layout.FlexChild, 0, len(lines))
	for _, line := range lines {
		line := line
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			l := material.Body1(th, line)
			l.Color = c
			return l.Layout(gtx)
		}))
	}
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}

func (w *Window) layoutLevelBar(gtx layout.Context, level float64) layout.Dimensions {
	height := gtx.Dp(8)
	if level < 0 {
		return layout.Dimensions{Size: image.Pt(gtx.Constraints.Max.X, height)}
	}
	if level > 1 {
		level = 1
	}
	width := gtx.Constraints.Max.X

	track := clip.Rect{Max: image.Pt(width, height)}.Op()
	paint.FillShape(gtx.Ops, color.NRGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}, track)

	fill := clip.Rect{Max: image.Pt(int(float64(width)*level), height)}.Op()
	paint.FillShape(gtx.Ops, color.NRGBA{R: 0x50, G: 0xc0, B: 0x50, A: 0xff}, fill)

	return layout.Dimensions{Size: image.Pt(width, height)}
}
