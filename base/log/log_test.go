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
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestOptionsFromFlags(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flagSet)
	assert.NoError(t, flagSet.Parse([]string{"--log-level", "warn", "--log-path", "a.log", "--log-compress"}))
	opts, err := OptionsFromFlags(flagSet, false)
	assert.NoError(t, err)
	assert.Equal(t, Options{
		Level:    "warn",
		Format:   FormatJSON,
		Path:     "a.log",
		MaxSize:  100,
		Compress: true,
	}, opts)

	opts, err = OptionsFromFlags(flagSet, true)
	assert.NoError(t, err)
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, FormatConsole, opts.Format)

	_, err = OptionsFromFlags(pflag.NewFlagSet("empty", pflag.ContinueOnError), false)
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	defer CloseLogger()
	for _, format := range []string{FormatConsole, FormatJSON} {
		path := filepath.Join(t.TempDir(), "tworank.log")
		assert.NoError(t, SetLogger(Options{Level: "info", Format: format, Path: path, MaxSize: 1}))
		Logger().Debug("hidden")
		Logger().Info("hello")
		_ = Logger().Sync()
		content, err := os.ReadFile(path)
		assert.NoError(t, err)
		assert.Contains(t, string(content), "hello")
		assert.NotContains(t, string(content), "hidden")
	}
}

func TestSetLoggerInvalid(t *testing.T) {
	defer CloseLogger()
	assert.NoError(t, SetLogger(Options{Level: "warn"}))
	before := Logger()
	err := SetLogger(Options{Level: "loud"})
	assert.True(t, errors.Is(err, errors.NotValid))
	err = SetLogger(Options{Level: "info", Format: "xml"})
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Same(t, before, Logger())
	assert.Equal(t, zapcore.WarnLevel, Level().Level())
}

func TestCloseLogger(t *testing.T) {
	assert.NoError(t, SetLogger(Options{Level: "debug"}))
	CloseLogger()
	assert.False(t, Logger().Core().Enabled(zapcore.ErrorLevel))
	assert.True(t, Logger().Core().Enabled(zapcore.FatalLevel))
}
