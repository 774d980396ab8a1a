package client

import "fmt"

func Log(level LogLevel, msg string) {
	fmt.Printf("[PERCODB:%s] %s\n", level, msg)
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
	LogLevelWarn  LogLevel = "WARN"
)
