package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"mock_interview_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func testConfig(mode, lvl string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Mode = mode
	cfg.Log.Level = lvl
	cfg.Tracing.ServiceName = "mock-interview"
	cfg.Database.Driver = "sqlite"
	cfg.Evaluator.Provider = "heuristic"
	return cfg
}

// TestBuildAddsDeploymentFields verifies JSON lines carry service, mode, driver and evaluator.
func TestBuildAddsDeploymentFields(t *testing.T) {
	var file, console bytes.Buffer
	log := build(testConfig("release", ""), zapcore.AddSync(&file), zapcore.AddSync(&console))

	log.Debug("hidden")
	log.Info("Interview session created", zap.Uint("session_id", 7))

	lines := strings.Split(strings.TrimSpace(file.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at info level, got %d: %s", len(lines), file.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]interface{}{
		"service":    "mock-interview",
		"mode":       "release",
		"db_driver":  "sqlite",
		"evaluator":  "heuristic",
		"session_id": float64(7),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("field %s: expected %v, got %v", k, v, entry[k])
		}
	}
	if !strings.Contains(console.String(), "Interview session created") {
		t.Fatalf("console output missing message")
	}
}

// TestLevelFor verifies explicit levels win over the server mode.
func TestLevelFor(t *testing.T) {
	cases := []struct {
		mode, level string
		want        zapcore.Level
	}{
		{"debug", "", zap.DebugLevel},
		{"release", "", zap.InfoLevel},
		{"debug", "warn", zap.WarnLevel},
		{"release", "nonsense", zap.InfoLevel},
	}
	for _, c := range cases {
		if got := levelFor(testConfig(c.mode, c.level)); got != c.want {
			t.Fatalf("mode=%s level=%s: expected %v, got %v", c.mode, c.level, c.want, got)
		}
	}
}

// TestReloadChangesLevel verifies a config reload takes effect on an existing logger.
func TestReloadChangesLevel(t *testing.T) {
	var file bytes.Buffer
	Log = build(testConfig("release", ""), zapcore.AddSync(&file), zapcore.AddSync(&bytes.Buffer{}))
	t.Cleanup(func() { Log = zap.NewNop() })

	Log.Debug("before reload")
	Reload(testConfig("release", "debug"))
	Log.Debug("after reload")

	out := file.String()
	if strings.Contains(out, "before reload") || !strings.Contains(out, "after reload") {
		t.Fatalf("unexpected output: %s", out)
	}
}
