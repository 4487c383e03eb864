package harbor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"
)

// Logger logs information generated at runtime, in either plain text or
// JSON, depending on the configured template.
type Logger struct {
	h *Harbor

	template   *template.Template
	bufferPool *sync.Pool
	mutex      sync.Mutex
	levels     []string

	Output io.Writer
}

type loggerLevel uint8

const (
	lvlDebug loggerLevel = iota
	lvlInfo
	lvlWarn
	lvlError
	lvlFatal
)

func newLogger(h *Harbor) *Logger {
	return &Logger{
		h: h,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
		levels: []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"},
		Output: os.Stdout,
	}
}

// Print prints i with no level prefix.
func (l *Logger) Print(i ...interface{}) {
	fmt.Fprintln(l.Output, i...)
}

// Printf prints a formatted message with no level prefix.
func (l *Logger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l.Output, format+"\n", args...)
}

// Debug logs i at DEBUG level.
func (l *Logger) Debug(i ...interface{}) { l.log(lvlDebug, "", i...) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(lvlDebug, format, args...) }

// Info logs i at INFO level.
func (l *Logger) Info(i ...interface{}) { l.log(lvlInfo, "", i...) }

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(lvlInfo, format, args...) }

// Warn logs i at WARN level.
func (l *Logger) Warn(i ...interface{}) { l.log(lvlWarn, "", i...) }

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(lvlWarn, format, args...) }

// Error logs i at ERROR level.
func (l *Logger) Error(i ...interface{}) { l.log(lvlError, "", i...) }

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(lvlError, format, args...) }

// Fatal logs i at FATAL level, then exits the process.
func (l *Logger) Fatal(i ...interface{}) {
	l.log(lvlFatal, "", i...)
	os.Exit(1)
}

func (l *Logger) log(lvl loggerLevel, format string, args ...interface{}) {
	if !l.h.Config.LoggerEnabled {
		return
	}

	if l.template == nil {
		l.template = template.Must(template.New("logger").Parse(l.h.Config.LoggerFormat))
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		l.bufferPool.Put(buf)
	}()

	message := fmt.Sprint(args...)
	if format != "" {
		message = fmt.Sprintf(format, args...)
	}

	_, file, line, _ := runtime.Caller(2)

	data := map[string]interface{}{
		"app_name":     l.h.Config.AppName,
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":        l.levels[lvl],
		"short_file":   path.Base(file),
		"long_file":    file,
		"line":         strconv.Itoa(line),
	}

	if err := l.template.Execute(buf, data); err != nil {
		return
	}

	s := buf.String()
	if i := buf.Len() - 1; i >= 0 && s[i] == '}' {
		buf.Truncate(i)
		buf.WriteByte(',')
		buf.WriteString(`"message":`)
		enc, _ := json.Marshal(message)
		buf.Write(enc)
		buf.WriteByte('}')
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}

	buf.WriteByte('\n')
	l.Output.Write(buf.Bytes())
}
