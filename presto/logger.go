package presto

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel is the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a case-insensitive level name to a LogLevel,
// defaulting to INFO for unrecognized input.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Field is a structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, val string) Field  { return Field{Key: key, Value: val} }
func Int(key string, val int) Field { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field {
	return Field{Key: key, Value: val.String()}
}
func Err(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}

// Logger is the structured logging interface the statement client logs
// through. Hosts may supply their own implementation via ClientOptions.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

type defaultLogger struct {
	logger     *log.Logger
	minLevel   LogLevel
	baseFields []Field
}

// NewLogger creates a logger at the given level writing to output (stdout
// if nil).
func NewLogger(level string, output io.Writer) Logger {
	if output == nil {
		output = os.Stdout
	}
	return &defaultLogger{
		logger:   log.New(output, "", 0),
		minLevel: ParseLogLevel(level),
	}
}

func (l *defaultLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *defaultLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *defaultLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *defaultLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

func (l *defaultLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.baseFields)+len(fields))
	merged = append(merged, l.baseFields...)
	merged = append(merged, fields...)
	return &defaultLogger{logger: l.logger, minLevel: l.minLevel, baseFields: merged}
}

func (l *defaultLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.minLevel {
		return
	}

	all := make([]Field, 0, len(l.baseFields)+len(fields)+3)
	all = append(all, Field{Key: "timestamp", Value: time.Now().Format(time.RFC3339Nano)})
	all = append(all, Field{Key: "level", Value: level.String()})
	all = append(all, Field{Key: "message", Value: msg})
	all = append(all, l.baseFields...)
	all = append(all, fields...)

	logMap := make(map[string]interface{}, len(all))
	for _, f := range all {
		logMap[f.Key] = f.Value
	}

	b, err := json.Marshal(logMap)
	if err != nil {
		l.logger.Printf(`{"level":"ERROR","message":"failed to marshal log","error":"%s"}`, err.Error())
		return
	}
	l.logger.Println(string(b))
}
