package diagnostic_test

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/diagnostic"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := make(map[string]interface{})
		require.NoError(t, json.Unmarshal(line, &m), string(line))
		lines = append(lines, m)
	}
	return lines
}

func TestService_JSON(t *testing.T) {
	var stderr bytes.Buffer
	c := diagnostic.NewConfig()
	c.Encoding = "json"
	s := diagnostic.NewService(c, ioutil.Discard, &stderr)
	require.NoError(t, s.Open())

	h := s.NewDispatchHandler().WithContext(keyvalue.KV("device", "sensor01"))
	now := time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC)
	h.RateLimited(ratelimit.Decision{
		Verdict:     ratelimit.RejectedCooldown,
		Effective:   1,
		NextAllowed: now.Add(4 * time.Hour),
	}, now)
	h.Error("failed to write alert mirror", errors.New("disk full"))
	require.NoError(t, s.Close())

	lines := decodeLines(t, stderr.Bytes())
	require.Len(t, lines, 2)
	assert.Equal(t, "dispatch", lines[0]["service"])
	assert.Equal(t, "sensor01", lines[0]["device"])
	assert.Equal(t, "cooldown", lines[0]["verdict"])
	assert.Equal(t, "4 hours from now", lines[0]["next_allowed"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "disk full", lines[1]["error"])
}

func TestService_Level(t *testing.T) {
	var stderr bytes.Buffer
	c := diagnostic.NewConfig()
	c.Encoding = "json"
	c.Level = "warn"
	s := diagnostic.NewService(c, ioutil.Discard, &stderr)
	require.NoError(t, s.Open())

	h := s.NewLoadHandler()
	h.Loaded("devices", 1, 2)
	assert.Empty(t, stderr.String())

	require.NoError(t, s.SetLevel("debug"))
	h.Loading("devices", "devices.yaml")
	assert.Contains(t, stderr.String(), "devices.yaml")

	assert.Error(t, s.SetLevel("chatty"))
}

func TestService_File(t *testing.T) {
	c := diagnostic.NewConfig()
	c.File = filepath.Join(t.TempDir(), "logs", "floodd.log")
	s := diagnostic.NewService(c, ioutil.Discard, ioutil.Discard)
	require.NoError(t, s.Open())
	s.NewSMSHandler().Accepted("639171234567", 200)
	s.NewServerHandler().Info("opened service", keyvalue.KV("service", "sms"))
	require.NoError(t, s.Close())

	data, err := ioutil.ReadFile(c.File)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "opened service"))
	assert.NotContains(t, string(data), "639171234567", "phone numbers are masked")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, diagnostic.NewConfig().Validate())
	c := diagnostic.NewConfig()
	c.Level = "verbose"
	assert.Error(t, c.Validate())
	c = diagnostic.NewConfig()
	c.Encoding = "logfmt"
	assert.Error(t, c.Validate())
}
