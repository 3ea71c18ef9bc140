package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu      sync.Mutex
	service string
	out     io.Writer
	logFile *os.File
}

// NewLogger writes colored lines to stdout and, when dir is non-empty, JSON
// lines to <dir>/<service>-<date>.log.
func NewLogger(service, dir string) *Logger {
	l := &Logger{service: service, out: os.Stdout}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("Failed to create logs directory:", err)
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", service, time.Now().Format("2006-01-02")))
		logFile, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Failed to create log file:", err)
		}
		l.logFile = logFile
		l.Info("LOGGER", fmt.Sprintf("Log file: %s", name))
	}

	return l
}

// NewWriterLogger sends terminal output to w and keeps no log file. Used by tests.
func NewWriterLogger(service string, w io.Writer) *Logger {
	return &Logger{service: service, out: w}
}

func (l *Logger) log(level LogLevel, category, message string) {
	_, file, line, ok := runtime.Caller(3)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelToString(level),
		Service:   l.service,
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	terminal := formatTerminalOutput(entry)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, terminal)
	if l.logFile != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.out, "logger: encode entry for file: %v\n", err)
			return
		}
		if _, err := l.logFile.Write(append(raw, '\n')); err != nil {
			fmt.Fprintf(l.out, "logger: write log file: %v\n", err)
		}
	}
}

func formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case "ERROR":
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	case "FATAL":
		levelColor = color.New(color.FgRed, color.Bold)
		categoryColor = levelColor
	default:
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	}

	timeStr := color.New(color.FgBlue).Sprint(timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}
	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

func (l *Logger) logf(level LogLevel, category, message string) {
	l.log(level, category, message)
}

func (l *Logger) Debug(category, message string) { l.logf(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.logf(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.logf(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.logf(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.logf(FATAL, category, message)
	os.Exit(1)
}

func (l *Logger) LogBid(action, auctionID, message string) {
	l.logf(INFO, "BID", fmt.Sprintf("[%s] %s - %s", action, auctionID, message))
}

func (l *Logger) LogLifecycle(from, to, auctionID string) {
	l.logf(INFO, "LIFECYCLE", fmt.Sprintf("%s %s -> %s", auctionID, from, to))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.logf(INFO, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.logf(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogBroadcast(action, auctionID, message string) {
	l.logf(INFO, "BROADCAST", fmt.Sprintf("[%s] %s - %s", action, auctionID, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.logf(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.logf(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

// RequestLogger is a chi middleware that reports every request through LogAPI.
func (l *Logger) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		l.LogAPI(r.Method, r.URL.Path, fmt.Sprint(status), time.Since(start).String())
	})
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
