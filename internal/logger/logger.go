// Package logger holds the process-wide structured logger. Interactive
// commands log to a rotating file under the config dir; the sync server
// streams to stderr, optionally as JSON.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/studyplanner/internal/constants"
)

// Logger is nil until Init or SetOutput runs; the package helpers are no-ops
// until then.
var Logger *log.Logger

var file *lumberjack.Logger

// Rotation bounds the log file. Zero fields take the defaults.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = 10
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 3
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = 28
	}
	return r
}

type Config struct {
	Debug     bool
	ConfigDir string
	// Console mirrors debug output to stderr. Leave it off while a
	// full-screen program owns the terminal.
	Console  bool
	Rotation Rotation
}

// Options configure a stream logger.
type Options struct {
	Debug bool
	JSON  bool
}

// LogFile returns the rotating log file path under configDir.
func LogFile(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

// Init points the global logger at the rotating log file. Warnings and
// above are kept unless Debug is set.
func Init(cfg Config) error {
	path := LogFile(cfg.ConfigDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	rot := cfg.Rotation.withDefaults()
	Close()
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   true,
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	var w io.Writer = file
	if cfg.Debug && cfg.Console {
		w = io.MultiWriter(os.Stderr, file)
	}
	Logger = log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	return nil
}

// SetOutput streams the global logger to w at info level, or debug when
// opts.Debug is set.
func SetOutput(w io.Writer, opts Options) {
	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	if opts.JSON {
		l.SetFormatter(log.JSONFormatter)
	}
	Close()
	Logger = l
}

// Close releases the log file opened by Init.
func Close() error {
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// With returns a logger that adds keyvals to every entry. It discards
// everything while the global logger is unset.
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return log.New(io.Discard)
	}
	return Logger.With(keyvals...)
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}
