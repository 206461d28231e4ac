// Package logger is a small leveled logger writing either plain text lines
// or one JSON object per line.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level is a log severity
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	OffLevel:   "OFF",
}

// String returns the upper case level name used in text output
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error or off
	Format string // text or json
	Output io.Writer
}

// Logger writes leveled messages with key/value fields
type Logger struct {
	min       Level
	json      bool
	component string
	out       *log.Logger
}

// Field is one key/value pair attached to a message
type Field struct {
	Key   string
	Value interface{}
}

// Nop returns a logger that discards everything. Decoders use it when no
// logger is injected.
func Nop() *Logger {
	return &Logger{min: OffLevel, out: log.New(io.Discard, "", 0)}
}

// New builds a logger from cfg. Unknown levels fall back to info and a nil
// Output means stdout.
func New(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}
	l := &Logger{min: parseLevel(cfg.Level), json: cfg.Format == "json"}
	if l.json {
		l.out = log.New(w, "", 0)
	} else {
		l.out = log.New(w, "", log.LstdFlags)
	}
	return l
}

// WithComponent returns a child logger tagged with component. Text output
// carries it as a bracketed prefix, JSON output as a "component" key.
func (l *Logger) WithComponent(component string) *Logger {
	prefix := ""
	if !l.json {
		prefix = "[" + component + "] "
	}
	child := *l
	child.component = component
	child.out = log.New(l.out.Writer(), prefix, l.out.Flags())
	return &child
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.min != OffLevel && level >= l.min
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(ErrorLevel, msg, fields) }

func (l *Logger) emit(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}
	if l.json {
		l.out.Print(l.encodeJSON(level, msg, fields))
		return
	}

	var b strings.Builder
	b.WriteString("[" + level.String() + "] " + msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	l.out.Print(b.String())
}

func (l *Logger) encodeJSON(level Level, msg string, fields []Field) string {
	entry := make(map[string]interface{}, len(fields)+4)
	for _, f := range fields {
		entry[f.Key] = f.Value
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = strings.ToLower(level.String())
	entry["msg"] = msg
	if l.component != "" {
		entry["component"] = l.component
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"msg":%q,"json_error":%q}`, strings.ToLower(level.String()), msg, err.Error())
	}
	return string(data)
}

func parseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return WarnLevel
	}
	if s == "none" {
		return OffLevel
	}
	for lvl, name := range levelNames {
		if strings.ToLower(name) == s {
			return lvl
		}
	}
	return InfoLevel
}

func String(key, val string) Field               { return Field{Key: key, Value: val} }
func Int(key string, val int) Field              { return Field{Key: key, Value: val} }
func Uint64(key string, val uint64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field            { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field      { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field      { return Field{Key: key, Value: val} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d.Seconds()} }

// Error returns an "error" field; a nil error is written as "nil".
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "nil"}
	}
	return Field{Key: "error", Value: err.Error()}
}
