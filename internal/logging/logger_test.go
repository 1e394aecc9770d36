package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vvka-141/txretry/pkg/txretry"
)

var (
	_ txretry.Logger = (*ConsoleLogger)(nil)
	_ txretry.Logger = (*JSONLogger)(nil)
	_ txretry.Logger = (*NullLogger)(nil)
)

func TestConsoleLogger_Verbose_WhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, ConsoleOptions{Verbose: true, OmitTime: true})

	logger.Verbose("test message: %s", "value")

	assert.Contains(t, buf.String(), "DBG")
	assert.Contains(t, buf.String(), "test message: value")
}

func TestConsoleLogger_Verbose_WhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, ConsoleOptions{OmitTime: true})

	logger.Verbose("test message: %s", "value")

	assert.Empty(t, buf.String())
}

func TestConsoleLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, ConsoleOptions{OmitTime: true})

	logger.Info("info %d", 1)
	logger.Warn("warn %d", 2)
	logger.Error("error %d", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INF")
	assert.Contains(t, lines[0], "info 1")
	assert.Contains(t, lines[1], "WRN")
	assert.Contains(t, lines[1], "warn 2")
	assert.Contains(t, lines[2], "ERR")
	assert.Contains(t, lines[2], "error 3")
}

func TestConsoleLogger_NoArgsKeepsPercent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, ConsoleOptions{OmitTime: true})

	logger.Info("100% done")

	assert.Contains(t, buf.String(), "100% done")
}

func TestConsoleLogger_ConcurrentUse(t *testing.T) {
	var buf syncBuffer
	logger := NewConsoleLoggerTo(&buf, ConsoleOptions{OmitTime: true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("line %d", n)
		}(i)
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 20)
}

func TestJSONLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewJSONLoggerFromZap(zap.New(core))

	logger.Verbose("debug %s", "a")
	logger.Info("info %s", "b")
	logger.Warn("warn %s", "c")
	logger.Error("error %s", "d")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "debug a", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "error d", entries[3].Message)
}

func TestJSONLogger_VerboseFilteredAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewJSONLoggerFromZap(zap.New(core))

	logger.Verbose("hidden")
	logger.Info("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestNewJSONLoggerFromZap_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewJSONLoggerFromZap(nil) })
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	logger.Verbose("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
