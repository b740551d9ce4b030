package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-mocks/pkg/client"
	"github.com/polisai/polis-mocks/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM = config.ListenerConfig{Host: "127.0.0.1"}
	cfg.Audit = config.ListenerConfig{Host: "127.0.0.1"}
	cfg.Stream.Interval = time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func startMocks(t *testing.T, cfg *config.Config, configPath string, watch bool) (llmURL, auditURL string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	group, servers := buildServices(cfg, configPath, watch, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- group.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("services did not stop")
		}
	})

	urls := make([]string, len(servers))
	for i, srv := range servers {
		select {
		case <-srv.Ready():
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not start", srv.Name())
		}
		urls[i] = "http://" + srv.Addr().String()
	}
	return urls[0], urls[1]
}

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	_, port, err := net.SplitHostPort(rawURL[len("http://"):])
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func TestBuildConfigFlagOverrides(t *testing.T) {
	t.Setenv("AUDIT_PORT", "9200")
	t.Setenv("LOG_LEVEL", "warn")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--llm-port", "9100", "--log-level", "debug", "--pretty"}))

	cfg, path, err := buildConfig(cmd)
	require.NoError(t, err)

	assert.Empty(t, path)
	assert.Equal(t, 9100, cfg.LLM.Port)
	assert.Equal(t, 9200, cfg.Audit.Port, "environment applies when the flag is unset")
	assert.Equal(t, "debug", cfg.Logging.Level, "flags beat the environment")
	assert.True(t, cfg.Logging.Pretty)
}

func TestBuildConfigRejectsInvalidOverrides(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--llm-port", "8001"}))

	_, _, err := buildConfig(cmd)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestWatchRequiresConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--watch"})
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch requires --config")
}

func TestServicesEndToEnd(t *testing.T) {
	llmURL, auditURL := startMocks(t, testConfig(), "", false)
	ctx := context.Background()

	chat := client.NewChatClient(llmURL, nil)
	fragments, err := chat.Stream(ctx, "HelloWorld", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hell", "oWo", "rld"}, fragments)

	completion, err := chat.Complete(ctx, "two words")
	require.NoError(t, err)
	assert.Equal(t, 2, completion.TokensUsed)

	auditor := client.NewAuditClient(auditURL, client.AuditConfig{
		UnhealthyWords:     []string{"bad", "worse"},
		CustomErrorMessage: "blocked",
	}, nil)
	verdict, err := auditor.Moderate(ctx, "This is BAD content")
	require.NoError(t, err)
	assert.False(t, verdict.Allow)
	assert.Equal(t, "blocked", verdict.Reason)
	assert.Equal(t, []string{"bad"}, verdict.FlaggedWords)
}

func TestMetricsEndpoint(t *testing.T) {
	llmURL, _ := startMocks(t, testConfig(), "", false)

	_, err := client.NewChatClient(llmURL, nil).Stream(context.Background(), "abc", 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := http.Get(llmURL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK &&
			bytes.Contains(body, []byte(`mocks_streams_total{outcome="completed",variant="plain"} 1`))
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHealthCommand(t *testing.T) {
	llmURL, auditURL := startMocks(t, testConfig(), "", false)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"health",
		"--llm-port", strconv.Itoa(portOf(t, llmURL)),
		"--audit-port", strconv.Itoa(portOf(t, auditURL)),
		"--wait", "2s",
	})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "llm: healthy\naudit: healthy\n", out.String())
}

func TestHealthCommandReportsDownService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"health", "--llm-port", strconv.Itoa(port), "--audit-port", strconv.Itoa(port + 1)})

	require.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "llm: unhealthy")
}

func TestWatchReloadsStreamSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mocks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  interval: 1ms\n  event_count: 2\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.LLM = config.ListenerConfig{Host: "127.0.0.1"}
	cfg.Audit = config.ListenerConfig{Host: "127.0.0.1"}

	llmURL, _ := startMocks(t, cfg, path, true)
	chat := client.NewChatClient(llmURL, nil)

	fragments, err := chat.Stream(context.Background(), "abcdef", 0)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	// Let the watcher register before the write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  interval: 1ms\n  event_count: 3\n"), 0o644))

	require.Eventually(t, func() bool {
		fragments, err := chat.Stream(context.Background(), "abcdef", 0)
		return err == nil && len(fragments) == 3
	}, 5*time.Second, 50*time.Millisecond)

	assert.True(t, metricsContain(t, llmURL, `mocks_config_reloads_total{status="success"}`))
}

func TestWatchCountsFailedReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mocks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  interval: 1ms\n  event_count: 2\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.LLM = config.ListenerConfig{Host: "127.0.0.1"}
	cfg.Audit = config.ListenerConfig{Host: "127.0.0.1"}

	llmURL, _ := startMocks(t, cfg, path, true)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  event_count: 0\n"), 0o644))

	require.Eventually(t, func() bool {
		return metricsContain(t, llmURL, `mocks_config_reloads_total{status="failure"}`)
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, metricsContain(t, llmURL, `mocks_config_reloads_total{status="success"}`))

	fragments, err := client.NewChatClient(llmURL, nil).Stream(context.Background(), "abcdef", 0)
	require.NoError(t, err)
	assert.Len(t, fragments, 2, "a rejected reload keeps the previous settings")
}

func metricsContain(t *testing.T, baseURL, needle string) bool {
	t.Helper()
	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return err == nil && bytes.Contains(body, []byte(needle))
}
