// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"

	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	logger = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	if err := SetLogger(Options{Level: "debug", Format: FormatConsole}); err != nil {
		panic(err)
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

// Level is shared by every logger built by SetLogger. It serves GET and PUT over HTTP.
func Level() zap.AtomicLevel {
	return level
}

// ResponseLogger returns a logger tagged with the request id of a response.
func ResponseLogger(resp *restful.Response) *zap.Logger {
	return logger.With(zap.String("request_id", resp.Header().Get("X-Request-ID")))
}

// CloseLogger silences everything below fatal. Tests use it to keep output quiet.
func CloseLogger() {
	level.SetLevel(zap.FatalLevel)
}

// Options of the process logger.
type Options struct {
	Level  string
	Format string
	// Path enables a rotated log file next to stdout.
	Path       string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Compress   bool
}

func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-level", "info", "minimum log level: debug, info, warn or error")
	flagSet.String("log-format", FormatJSON, "log encoding: console or json")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
	flagSet.Bool("log-compress", false, "gzip rotated log files")
}

// OptionsFromFlags reads the flags registered by AddFlags. Debug mode forces the
// console format at debug level.
func OptionsFromFlags(flagSet *pflag.FlagSet, debug bool) (Options, error) {
	var (
		opts Options
		err  error
	)
	if opts.Level, err = flagSet.GetString("log-level"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.Format, err = flagSet.GetString("log-format"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.Path, err = flagSet.GetString("log-path"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.MaxSize, err = flagSet.GetInt("log-max-size"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.MaxAge, err = flagSet.GetInt("log-max-age"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.MaxBackups, err = flagSet.GetInt("log-max-backups"); err != nil {
		return opts, errors.Trace(err)
	}
	if opts.Compress, err = flagSet.GetBool("log-compress"); err != nil {
		return opts, errors.Trace(err)
	}
	if debug {
		opts.Level = zapcore.DebugLevel.String()
		opts.Format = FormatConsole
	}
	return opts, nil
}

// SetLogger replaces the process logger. Invalid options leave the current one in place.
func SetLogger(opts Options) error {
	lvl, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return errors.NewNotValid(err, "log level")
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	var encoder zapcore.Encoder
	switch opts.Format {
	case FormatConsole:
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	case FormatJSON, "":
		encoder = zapcore.NewJSONEncoder(cfg)
	default:
		return errors.NotValidf("log format %s", opts.Format)
	}
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		}))
	}
	level.SetLevel(lvl)
	logger = zap.New(zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level))
	return nil
}
