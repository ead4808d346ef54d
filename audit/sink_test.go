package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSink_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	require.NoError(t, s.Write(context.Background(), testEvent(t, "open")))
	require.NoError(t, s.Write(context.Background(), testEvent(t, "close")))
	require.NoError(t, s.Close())

	scanner := bufio.NewScanner(&buf)
	var ops []string
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ops = append(ops, rec["operation"].(string))
	}
	assert.Equal(t, []string{"open()", "close()"}, ops)
}

func TestFileSink_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for _, op := range []string{"first", "second"} {
		s, err := NewFileSink(path)
		require.NoError(t, err)
		require.NoError(t, s.Write(context.Background(), testEvent(t, op)))
		require.NoError(t, s.Close())
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"operation":"first()"`)
	assert.Contains(t, string(lines[1]), `"operation":"second()"`)
}

func TestFileSink_BadPath(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "audit.log"))
	assert.Error(t, err)
}

func TestNoopSink(t *testing.T) {
	var s Sink = NoopSink{}
	assert.NoError(t, s.Write(context.Background(), testEvent(t, "nothing")))
	assert.NoError(t, s.Close())
}
