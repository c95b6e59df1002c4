/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
}

func TestNewLoggerIsRegisteredOnce(t *testing.T) {
	a := NewLogger("utils-test")
	b := NewLogger("utils-test")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("utils-test", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("missing-logger", "error"))
}

func TestConfigureAppliesToRegistry(t *testing.T) {
	existing := NewLogger("utils-configure-old")
	before := existing.GetLevel()
	t.Cleanup(func() {
		ConfigureLogLevel(before.String())
		ConfigureConsoleLogFormat(EnvDefaultString("CONSOLE_LOG_FORMAT", "text"))
		ConfigureConsoleWriter(os.Stdout)
	})

	var buf bytes.Buffer
	ConfigureConsoleWriter(&buf)
	ConfigureConsoleWriter(nil)
	ConfigureConsoleLogFormat(" JSON ")
	ConfigureLogLevel("warn")
	assert.Equal(t, logrus.WarnLevel, existing.GetLevel())

	l := NewLogger("utils-configure-new")
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	l.Info("dropped")
	l.Warn("kept")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "kept", rec["message"])
	assert.Equal(t, "utils-configure-new", rec["logger"])

	ConfigureConsoleLogFormat("anything")
	assert.IsType(t, &Log4jColorFormatter{}, NewLogger("utils-configure-text").Formatter)
}

func testEntry() *logrus.Entry {
	l := logrus.New()
	e := logrus.NewEntry(l).WithFields(logrus.Fields{"uow": "abc", "error": errors.New("boom")})
	e.Time = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e.Level = logrus.WarnLevel
	e.Message = "query failed"
	return e
}

func TestLog4jFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 10, PathFmt: PathFormatNone}
	out, err := f.Format(testEntry())
	require.NoError(t, err)
	line := string(out)
	assert.Contains(t, line, "2025-01-02 03:04:05.000")
	assert.Contains(t, line, "WARNING")
	assert.Contains(t, line, "[  DATABASE]")
	assert.Contains(t, line, ": query failed error=boom uow=abc")
	assert.NotContains(t, line, ansiReset)
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DATABASE", PathFmt: PathFormatNone}
	out, err := f.Format(testEntry())
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out), &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "DATABASE", rec["logger"])
	assert.Equal(t, "query failed", rec["message"])
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "abc", fields["uow"])
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("STRATA_TEST_STR", "value")
	t.Setenv("STRATA_TEST_BOOL", "true")
	t.Setenv("STRATA_TEST_INT", "12")
	t.Setenv("STRATA_TEST_BAD", "x")

	assert.Equal(t, "value", EnvDefaultString("STRATA_TEST_STR", "def"))
	assert.Equal(t, "def", EnvDefaultString("STRATA_TEST_UNSET", "def"))
	assert.True(t, EnvDefaultBool("STRATA_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("STRATA_TEST_BAD", true))
	assert.Equal(t, 12, EnvDefaultInt("STRATA_TEST_INT", 1))
	assert.Equal(t, 1, EnvDefaultInt("STRATA_TEST_BAD", 1))
}
