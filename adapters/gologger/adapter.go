// Package gologger backs the glog logging contract with log/slog handlers.
package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-connectors/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ParseLevel accepts trace, debug, info, warn and error. Anything else is
// info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger adapts a *slog.Logger to glog.Logger and glog.FieldsLogger.
// Attribute values under sensitive keys are redacted before they reach the
// handler.
type Logger struct {
	base *slog.Logger
	ctx  context.Context
	exit func(int)
}

func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base, ctx: context.Background(), exit: os.Exit}
}

// NewJSON writes one JSON object per line to w.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key != slog.LevelKey {
				return attr
			}
			switch attr.Value.Any() {
			case LevelTrace:
				attr.Value = slog.StringValue("TRACE")
			case LevelFatal:
				attr.Value = slog.StringValue("FATAL")
			}
			return attr
		},
	})))
}

func (l *Logger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(LevelFatal, msg, args)
	if l != nil && l.exit != nil {
		l.exit(1)
	}
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	next := *l
	next.ctx = ctx
	return &next
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if len(fields) == 0 {
		return l
	}
	redacted := core.RedactSensitiveMap(fields)
	attrs := make([]any, 0, len(redacted)*2)
	for key, value := range redacted {
		attrs = append(attrs, key, value)
	}
	next := *l
	next.base = l.base.With(attrs...)
	return &next
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	next := *l
	next.base = l.base.With("logger", strings.TrimSpace(name))
	return &next
}

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if l == nil || l.base == nil {
		return
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.base.Enabled(ctx, level) {
		return
	}
	l.base.Log(ctx, level, msg, redactArgs(args)...)
}

// redactArgs treats args as key/value pairs the way slog does. A trailing
// value without a key is passed through.
func redactArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	for idx := 0; idx+1 < len(out); idx += 2 {
		key, ok := out[idx].(string)
		if !ok {
			continue
		}
		if core.IsSensitiveKey(key) {
			out[idx+1] = core.RedactedValue
		}
	}
	return out
}

// Provider hands out component loggers that share one handler.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	if root == nil {
		root = New(nil)
	}
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	return p.root.Named(name)
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
