// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(format OutputFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)
	logger.SetFormat(format)
	logger.SetLevel(DEBUG)
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m), buf.String())
	return m
}

func TestLoggerBasic(t *testing.T) {
	logger, buf := newTestLogger(FormatText)

	logger.Info("hello %s", "world")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "hello world")
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newTestLogger(FormatText)
	logger.SetLevel(INFO)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "DEBUG should be filtered")

	logger.Info("info message")
	assert.Contains(t, buf.String(), "info message")
	buf.Reset()

	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "warn message")
	buf.Reset()

	logger.SetLevel(ERROR)
	logger.Warn("dropped")
	assert.Zero(t, buf.Len())
	logger.Error("error message")
	assert.Contains(t, buf.String(), "error message")
	assert.Equal(t, ERROR, logger.GetLevel())
}

func TestLoggerJSON(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)

	logger.Info("json test %d", 7)

	m := decodeLine(t, buf)
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "json test 7", m["message"])
	assert.Equal(t, "test", m["logger"])
	assert.Contains(t, m, "time")
}

func TestLoggerFields(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)

	logger.WithFields(Fields{"phase": "printing", "slot": 3}).
		WithField("file", "cube.gcode").
		Warn("queue full")

	m := decodeLine(t, buf)
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "printing", m["phase"])
	assert.Equal(t, float64(3), m["slot"])
	assert.Equal(t, "cube.gcode", m["file"])
}

func TestLoggerWithError(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)

	logger.WithError(errors.New("card removed")).Errorf("abort %s", "job")

	m := decodeLine(t, buf)
	assert.Equal(t, "card removed", m["error"])
	assert.Equal(t, "abort job", m["message"])
}

func TestLoggerEntryDoesNotLeakFields(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)

	base := logger.WithField("a", 1)
	_ = base.WithField("b", 2)
	base.Info("only a")

	m := decodeLine(t, buf)
	assert.Contains(t, m, "a")
	assert.NotContains(t, m, "b")
}

func TestLoggerWithPrefix(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)

	child := logger.WithPrefix("session")
	child.Debug("tick")

	m := decodeLine(t, buf)
	assert.Equal(t, "session", m["logger"])
	assert.Equal(t, "debug", m["level"])
	assert.Equal(t, "session", child.Prefix())
}

func TestLoggerCaller(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON)
	logger.SetCaller(true)

	logger.Info("where")

	m := decodeLine(t, buf)
	caller, ok := m["caller"].(string)
	require.True(t, ok, "caller missing: %s", buf.String())
	assert.True(t, strings.Contains(caller, "logger_test.go"), caller)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Warn", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("LCDPRINT_LOG_LEVEL", "error")
	t.Setenv("LCDPRINT_LOG_FORMAT", "json")

	logger, buf := newTestLogger(FormatText)
	ConfigureFromEnv(logger)

	logger.Warn("hidden")
	assert.Zero(t, buf.Len())

	logger.Error("shown")
	m := decodeLine(t, buf)
	assert.Equal(t, "shown", m["message"])
}

func TestGetLoggerUsesDefault(t *testing.T) {
	var buf bytes.Buffer
	d := New("root")
	d.SetWriter(&buf)
	d.SetFormat(FormatJSON)
	SetDefaultLogger(d)
	defer SetDefaultLogger(nil)

	GetLogger("sdcard").Info("mounted")

	m := decodeLine(t, &buf)
	assert.Equal(t, "sdcard", m["logger"])
}
