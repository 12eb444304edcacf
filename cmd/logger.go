package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// levelFlag adapts slog.Level to a pflag value.
type levelFlag slog.Level

var _ pflag.Value = (*levelFlag)(nil)

func (l *levelFlag) String() string { return slog.Level(*l).String() }
func (l *levelFlag) Type() string   { return "level" }

func (l *levelFlag) Set(s string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("unknown log level %q", s)
	}
	*l = levelFlag(lvl)
	return nil
}

type formatFlag string

const (
	formatAuto formatFlag = "auto"
	formatText formatFlag = "text"
	formatJSON formatFlag = "json"
)

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string { return string(*f) }
func (f *formatFlag) Type() string   { return "format" }

func (f *formatFlag) Set(s string) error {
	switch v := formatFlag(strings.ToLower(s)); v {
	case formatAuto, formatText, formatJSON:
		*f = v
		return nil
	}
	return fmt.Errorf("unknown log format %q (want auto, text or json)", s)
}

// newLogger builds the process logger. In auto mode a terminal gets the
// text handler and anything else (pipes, CI) gets JSON.
func newLogger(w io.Writer, level slog.Level, format formatFlag) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == formatAuto {
		format = formatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = formatText
		}
	}
	if format == formatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
