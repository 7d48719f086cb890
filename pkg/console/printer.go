package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/rail/pkg/events"
)

// DefaultWidth bounds rendered params when the terminal width is unknown.
const DefaultWidth = 120

// Printer renders events as styled single lines. It is an events.Emitter
// and is safe for concurrent use.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	// Quiet hides stderr lines of the children.
	Quiet bool
}

// NewPrinter writes to out, truncating lines to width cells.
func NewPrinter(out io.Writer, width int) *Printer {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Printer{out: out, width: width}
}

func (p *Printer) Emit(e events.Event) {
	line, ok := p.Render(e)
	if !ok {
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.out, line)
	p.mu.Unlock()
}

// Printf writes a message outside the event stream.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.mu.Unlock()
}

// Render formats e. It reports false for events that are not shown.
func (p *Printer) Render(e events.Event) (string, bool) {
	switch pl := e.Payload.(type) {
	case events.Lifecycle:
		msg := ""
		if pl.Message != nil {
			msg = " " + *pl.Message
		}
		style := lifecycleStyle
		if isErrorState(pl.State) {
			style = errorStyle
		}
		return style.Render(GlyphLifecycle+" engine "+pl.State) + p.truncate(msg, len(pl.State)+9), true

	case events.Notification:
		if p.Quiet && strings.HasSuffix(pl.Method, "stderr") {
			return "", false
		}
		head := GlyphNotification + " " + pl.Method
		return methodStyle.Render(head) + " " + dimStyle.Render(p.truncate(compact(pl.Params), runewidth.StringWidth(head)+1)), true

	case events.ApprovalRequest:
		head := fmt.Sprintf("%s approval #%d", GlyphApproval, pl.RequestID)
		return approvalStyle.Render(head) + " " + methodStyle.Render(pl.Method) + " " +
			p.truncate(compact(pl.Params), runewidth.StringWidth(head)+runewidth.StringWidth(pl.Method)+4), true
	}
	return "", false
}

// Result renders the outcome of a console command.
func (p *Printer) Result(raw json.RawMessage, err error) {
	if err != nil {
		p.Printf("%s\n", errorStyle.Render(GlyphError+" "+err.Error()))
		return
	}
	p.Printf("%s %s\n", okStyle.Render(GlyphOK), p.truncate(compact(raw), 2))
}

func (p *Printer) truncate(s string, used int) string {
	room := p.width - used
	if room < 8 {
		room = 8
	}
	return runewidth.Truncate(s, room, "…")
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}

func isErrorState(state string) bool {
	switch state {
	case events.StateParseError, events.StateReadError, events.StateStderrError, events.StateDisconnected:
		return true
	}
	return false
}
