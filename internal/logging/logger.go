package logging

import (
	"encoding/json"
	"fmt"
	"io"
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

// ParseLevel accepts the level names in any case. "warning" is an alias
// for WARN.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Fields is the structured payload attached to an entry.
type Fields = map[string]interface{}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

// sink is shared between a logger and the children made by WithFields so
// they serialise writes to the same output.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger writes one JSON object per line.
type Logger struct {
	sink    *sink
	level   Level
	service string
	fields  Fields
	now     func() time.Time
}

func New() *Logger {
	return &Logger{
		sink:   &sink{out: os.Stdout},
		level:  LevelInfo,
		fields: Fields{},
		now:    time.Now,
	}
}

func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
	return l
}

func (l *Logger) SetLevel(level Level) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.level = level
	return l
}

// SetService tags every entry with the emitting binary.
func (l *Logger) SetService(name string) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.service = name
	return l
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a child logger that adds fields to every entry.
func (l *Logger) WithFields(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		sink:    l.sink,
		level:   l.level,
		service: l.service,
		fields:  merged,
		now:     l.now,
	}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields...) }

func (l *Logger) log(level Level, msg string, extra ...Fields) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Service:   l.service,
		Message:   msg,
	}
	if n := len(l.fields) + len(extra); n > 0 {
		all := make(Fields, len(l.fields))
		for k, v := range l.fields {
			all[k] = v
		}
		for _, f := range extra {
			for k, v := range f {
				all[k] = v
			}
		}
		if len(all) > 0 {
			entry.Fields = all
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = io.WriteString(l.sink.out, entry.Timestamp+" "+entry.Level+" "+msg+"\n")
		return
	}
	_, _ = l.sink.out.Write(append(data, '\n'))
}

var Default = New()

func SetDefaultLevel(level Level) {
	Default.SetLevel(level)
}

func Debug(msg string, fields ...Fields) { Default.Debug(msg, fields...) }
func Info(msg string, fields ...Fields)  { Default.Info(msg, fields...) }
func Warn(msg string, fields ...Fields)  { Default.Warn(msg, fields...) }
func Error(msg string, fields ...Fields) { Default.Error(msg, fields...) }
