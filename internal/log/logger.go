// Package log provides a global logger with configurable logging level. Messages are written to
// stderr through zap's console encoder.

package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var zapLevels = map[Level]zapcore.Level{
	LevelDebug:   zapcore.DebugLevel,
	LevelInfo:    zapcore.InfoLevel,
	LevelWarning: zapcore.WarnLevel,
	LevelError:   zapcore.ErrorLevel,
}

var (
	logMutex    sync.Mutex
	globalLevel = LevelInfo
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar       = newSugar(atomicLevel)
)

func newSugar(level zap.AtomicLevel) *zap.SugaredLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core).Sugar()
}

// SetLevel changes the global logging level. LevelNone silences all output.
func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLevel = level
	if zl, ok := zapLevels[level]; ok {
		atomicLevel.SetLevel(zl)
	} else {
		atomicLevel.SetLevel(zapcore.FatalLevel + 1)
	}
}

func logLevel() Level {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLevel
}

// Enabled reports whether messages at level are currently emitted.
func Enabled(level Level) bool {
	return level != LevelNone && level <= logLevel()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = sugar.Sync()
}

func Debug(format string, a ...interface{}) {
	sugar.Debugf(format, a...)
}
func Info(format string, a ...interface{}) {
	sugar.Infof(format, a...)
}
func Warning(format string, a ...interface{}) {
	sugar.Warnf(format, a...)
}
func Error(format string, a ...interface{}) {
	sugar.Errorf(format, a...)
}
