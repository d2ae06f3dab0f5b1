package log

import "strings"

type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

// Parse maps a config string to a level, defaulting to Info.
func Parse(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "fatal":
		return Fatal
	}
	return Info
}

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "INFO"
}

// Color returns the ANSI escape for terminal output.
func Color(l LogLevel) string {
	switch l {
	case Debug:
		return "\033[36m" // cyan
	case Info:
		return "\033[32m" // green
	case Warn:
		return "\033[33m" // yellow
	case Error:
		return "\033[31m" // red
	case Fatal:
		return "\033[35m" // magenta
	}
	return "\033[0m"
}
