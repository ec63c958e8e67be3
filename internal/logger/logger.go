package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects how a log line is rendered.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	format       = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)
	output       io.Closer
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names leave the level unchanged.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// IsDebug reports whether debug output is enabled. Hot paths use it to skip
// formatting arguments that would be discarded.
func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel <= LevelDebug
}

// SetFormat selects "text" or "json" output.
func SetFormat(name string) error {
	var f Format
	switch strings.ToLower(name) {
	case "", "text":
		f = FormatText
	case "json":
		f = FormatJSON
	default:
		return fmt.Errorf("unknown log format %q", name)
	}
	mu.Lock()
	format = f
	mu.Unlock()
	return nil
}

// SetOutput redirects log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = stdlog.New(w, "", 0)
	mu.Unlock()
}

// Configure applies level, format and destination in one call. Output is
// "stdout", "stderr" or a file path opened in append mode.
func Configure(level, fmtName, dest string) error {
	if _, err := ParseLevel(level); err != nil {
		return err
	}
	if err := SetFormat(fmtName); err != nil {
		return err
	}

	var w io.Writer
	var closer io.Closer
	switch dest {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", dest, err)
		}
		w, closer = f, f
	}

	mu.Lock()
	if output != nil {
		_ = output.Close()
	}
	output = closer
	logger = stdlog.New(w, "", 0)
	mu.Unlock()

	SetLevel(level)
	return nil
}

func log(level Level, msgFormat string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(msgFormat, v...)

	if format == FormatJSON {
		line, err := json.Marshal(struct {
			Time  string `json:"time"`
			Level string `json:"level"`
			Msg   string `json:"msg"`
		}{now.Format(time.RFC3339Nano), level.String(), message})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
