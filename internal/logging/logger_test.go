package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("grid", &buf, WARN)

	l.Info("не должно попасть")
	l.Warn("регион %d занят", 7)
	l.Error("ошибка")

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [grid] регион 7 занят")
	assert.Contains(t, out, "[ERROR] [grid] ошибка")

	buf.Reset()
	l.SetLevels(TRACE, ERROR)
	l.Trace("trace")
	assert.Contains(t, buf.String(), "[TRACE]")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("что-то"))
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := getDefault()
	SetDefaultLogger(NewWriterLogger("test", &buf, DEBUG))
	defer SetDefaultLogger(prev)

	Debug("отладка")
	Info("инфо")
	assert.Equal(t, 2, strings.Count(buf.String(), "[test]"))
}

func TestLoggerManagerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	SetLogDir(dir)
	defer SetLogDir("logs")

	lm := NewLoggerManager()
	l, err := lm.GetLogger("api")
	require.NoError(t, err)

	again, err := lm.GetLogger("api")
	require.NoError(t, err)
	assert.Same(t, l, again)

	l.Debug("в файл")
	lm.SetLevels(ERROR, ERROR)
	l.Debug("отфильтровано")

	later, err := lm.GetLogger("eventbus")
	require.NoError(t, err)
	later.Info("тоже отфильтровано")
	require.NoError(t, lm.CloseAll())

	files, err := filepath.Glob(filepath.Join(dir, "api_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "в файл")
	assert.NotContains(t, string(data), "отфильтровано")

	files, err = filepath.Glob(filepath.Join(dir, "eventbus_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err = os.ReadFile(files[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "отфильтровано")
}
