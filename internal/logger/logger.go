// Package logger builds the zerolog logger used across ganttsync.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 100
	maxBackups = 5
	maxAgeDays = 28
)

type LogBuild struct {
	writer  io.Writer
	path    string
	level   string
	console bool
}

type LogData struct {
	Logger zerolog.Logger
	// LogFile is the rotating file sink, nil when logging to a writer.
	LogFile *lumberjack.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

// FromPath logs to a file rotated by size.
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name. An empty name means info.
func (build *LogBuild) Level(level string) *LogBuild {
	build.level = level
	return build
}

// Console switches to zerolog's human-readable console format.
func (build *LogBuild) Console(enabled bool) *LogBuild {
	build.console = enabled
	return build
}

func (build *LogBuild) Make() (*LogData, error) {
	level := zerolog.InfoLevel
	if build.level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(build.level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", build.level, err)
		}
		level = parsed
	}

	logData := new(LogData)
	var w io.Writer = os.Stderr
	if build.writer != nil {
		w = build.writer
	}
	if build.path != "" {
		logData.LogFile = &lumberjack.Logger{
			Filename:   build.path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		w = zerolog.SyncWriter(logData.LogFile)
	}
	if build.console {
		w = zerolog.ConsoleWriter{Out: w, NoColor: build.path != ""}
	}

	logData.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logData, nil
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}
