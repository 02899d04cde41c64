package littlewebserver

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

// Logger is used to log information generated at runtime. A Server uses a
// Logger to emit the single server-error event described in spec §7: every
// converted error (BadRequest, ChunkError, WriteFailure, DrainFailure,
// HandlerFailure, ...) is reported exactly once via (error, file, line).
type Logger struct {
	enabled bool

	template   *template.Template
	format     string
	bufferPool *sync.Pool
	mutex      sync.Mutex

	// Output is where formatted log lines are written. Default is
	// os.Stdout.
	Output io.Writer
}

// loggerLevel is the level of a Logger entry.
type loggerLevel uint8

const (
	lvlDebug loggerLevel = iota
	lvlInfo
	lvlWarn
	lvlError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// newLogger returns a new Logger using format as its text/template format
// string, following the shape of the teacher's Logger.
func newLogger(format string, enabled bool) *Logger {
	return &Logger{
		enabled: enabled,
		format:  format,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
		Output: os.Stdout,
	}
}

// Debug logs a DEBUG level entry built from args.
func (l *Logger) Debug(args ...interface{}) { l.log(lvlDebug, "", args...) }

// Info logs an INFO level entry built from args.
func (l *Logger) Info(args ...interface{}) { l.log(lvlInfo, "", args...) }

// Warn logs a WARN level entry built from args.
func (l *Logger) Warn(args ...interface{}) { l.log(lvlWarn, "", args...) }

// Error logs an ERROR level entry built from args.
func (l *Logger) Error(args ...interface{}) { l.log(lvlError, "", args...) }

// Errorf logs an ERROR level entry built with fmt.Sprintf(format, args...).
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(lvlError, format, args...)
}

// ReportError is the server-error event hook required by spec §7: it logs
// err together with the file and line of its caller.
func (l *Logger) ReportError(err error) {
	if !l.enabled || err == nil {
		return
	}

	_, file, line, _ := runtime.Caller(1)
	l.emit(lvlError, err.Error(), file, line)
}

func (l *Logger) log(lvl loggerLevel, format string, args ...interface{}) {
	if !l.enabled {
		return
	}

	message := ""
	if format == "" {
		message = fmt.Sprint(args...)
	} else {
		message = fmt.Sprintf(format, args...)
	}

	_, file, line, _ := runtime.Caller(2)
	l.emit(lvl, message, file, line)
}

func (l *Logger) emit(lvl loggerLevel, message, file string, line int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.template == nil {
		l.template = template.Must(template.New("logger").Parse(l.format))
	}

	buf := l.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer l.bufferPool.Put(buf)

	data := map[string]interface{}{
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":        levelNames[lvl],
		"short_file":   path.Base(file),
		"long_file":    file,
		"line":         strconv.Itoa(line),
	}

	if err := l.template.Execute(buf, data); err != nil {
		fmt.Fprintf(l.Output, "%s %s\n", levelNames[lvl], message)
		return
	}

	s := buf.String()
	if n := len(s); n > 0 && s[n-1] == '}' {
		buf.Truncate(n - 1)
		buf.WriteByte(',')
		b, _ := json.Marshal(message)
		buf.WriteString(`"message":`)
		buf.Write(b)
		buf.WriteByte('}')
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}
	buf.WriteByte('\n')

	l.Output.Write(buf.Bytes())
}
