package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// decisionColours colours the decision attribute by what the graph did.
var decisionColours = map[string]string{
	"create":            ansiGreen,
	"attach_update":     ansiGreen,
	"redirect_attach":   ansiCyan,
	"link_membership":   ansiDim,
	"link_relationship": ansiDim,
	"merge":             ansiYellow,
	"review":            ansiBlue,
}

// TerminalHandler writes records as one coloured line each:
//
//	15:04:05.000 INF file observed canonical_id=urn:sha256:… decision=create
//
// Error attributes are red and the decision attribute is coloured by kind.
type TerminalHandler struct {
	w      io.Writer
	level  slog.Leveler
	prefix []byte
	groups []string
	mu     *sync.Mutex
}

func newTerminalHandler(w io.Writer, opts *slog.HandlerOptions) *TerminalHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &TerminalHandler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes the record.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	paint(buf, ansiDim, ts.Format("15:04:05.000"))
	buf.WriteByte(' ')
	colour, label := levelStyle(r.Level)
	paint(buf, colour, label)
	buf.WriteByte(' ')
	paint(buf, ansiBold, r.Message)

	buf.Write(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(buf, a, h.groups)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs pre-renders attrs so they are not formatted on every record.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	buf := bytes.NewBuffer(append([]byte(nil), h.prefix...))
	for _, a := range attrs {
		writeAttr(buf, a, h.groups)
	}
	next := *h
	next.prefix = buf.Bytes()
	return &next
}

// WithGroup qualifies subsequent attribute keys with name.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level < slog.LevelInfo:
		return ansiCyan, "DBG"
	case level < slog.LevelWarn:
		return ansiGreen, "INF"
	case level < slog.LevelError:
		return ansiYellow, "WRN"
	default:
		return ansiRed, "ERR"
	}
}

func paint(buf *bytes.Buffer, colour, s string) {
	buf.WriteString(colour)
	buf.WriteString(s)
	buf.WriteString(ansiReset)
}

func writeAttr(buf *bytes.Buffer, a slog.Attr, groups []string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			writeAttr(buf, ga, inner)
		}
		return
	}

	buf.WriteByte(' ')
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + a.Key
	}
	paint(buf, ansiDim, key+"=")

	value := formatValue(a.Value)
	switch colour := valueColour(a); colour {
	case "":
		buf.WriteString(value)
	default:
		paint(buf, colour, value)
	}
}

func valueColour(a slog.Attr) string {
	switch a.Key {
	case "error", "err":
		return ansiRed
	case "decision":
		return decisionColours[a.Value.String()]
	}
	return ""
}

func formatValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return v.String()
	}
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\n\"\\=") {
		return strconv.Quote(s)
	}
	return s
}
