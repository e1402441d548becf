package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the auth service.
// Configure once at startup; every helper is safe for concurrent use.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(l)
}

// Configure sets the level like Init, but forces debug output when the
// service runs in the development environment.
func Configure(l, environment string) {
	if strings.EqualFold(strings.TrimSpace(environment), "development") {
		l = "debug"
	}
	Init(l)
}

// SetOutput redirects log output. Passing nil restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	logger = log.New(w, "", 0)
}

func parseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl))
}

func output(l Level, lvl, format string, v ...interface{}) {
	mu.RLock()
	enabled := l >= level
	out := logger
	mu.RUnlock()
	if !enabled {
		return
	}
	out.Printf(header(lvl)+format, v...)
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "debug", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "info", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "warn", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "error", format, v...) }

func Fatalf(format string, v ...interface{}) {
	mu.RLock()
	out := logger
	mu.RUnlock()
	out.Printf(header("fatal")+format, v...)
	os.Exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Redact keeps the first few characters of a secret value so log lines can be
// correlated without leaking the value itself.
func Redact(s string) string {
	const keep = 6
	if len(s) <= keep {
		return fmt.Sprintf("<len=%d>", len(s))
	}
	return fmt.Sprintf("%s…<len=%d>", s[:keep], len(s))
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
