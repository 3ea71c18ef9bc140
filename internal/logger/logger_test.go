package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestWriterLoggerLeavesColorSettingAlone(t *testing.T) {
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = true })

	NewWriterLogger("auction-api", &bytes.Buffer{})
	assert.False(t, color.NoColor)
}

func TestWriterLoggerFormatsCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("auction-api", &buf)

	l.LogBid("ACCEPTED", "a-1", "amount=110")
	l.LogSecurity("TOKEN", "expired")

	out := buf.String()
	assert.Contains(t, out, "[BID       ]")
	assert.Contains(t, out, "[ACCEPTED] a-1 - amount=110")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "[SECURITY  ]")
	assert.Contains(t, out, "logger_test.go")
}

func TestFileLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger("auction-api", dir)
	l.out = &bytes.Buffer{}
	l.LogKafka("PUBLISH", "auction.bid.accepted", "ok")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "auction-api-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NotEmpty(t, entries)

	var kafka *LogEntry
	for i := range entries {
		if entries[i].Category == "KAFKA" {
			kafka = &entries[i]
		}
	}
	require.NotNil(t, kafka)
	assert.Equal(t, "auction-api", kafka.Service)
	assert.Equal(t, "INFO", kafka.Level)
	assert.Equal(t, "[PUBLISH] auction.bid.accepted - ok", kafka.Message)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("auction-api", &buf)

	h := l.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "GET /api/auctions - 418")
}
