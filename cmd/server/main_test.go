package main

import (
	"bytes"
	"context"
	"flag"
	"net"
	"path/filepath"
	"strings"
	"testing"

	vc "github.com/linnemanlabs/carequeue/internal/cfg"
)

func TestNotifySystemd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		socket func(t *testing.T) string
		want   string
	}{
		{"unset", func(*testing.T) string { return "" }, "NOTIFY_SOCKET not set"},
		{"missing socket", func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.sock") }, "dial failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NOTIFY_SOCKET", tt.socket(t))
			err := notifySystemd()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("notifySystemd() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestNotifySystemd_SendsReady(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", sock)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd: %v", err)
	}
	buf := make([]byte, 64)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Errorf("payload = %q, want READY=1", got)
	}
}

func load(t *testing.T, args ...string) (*config, string, error) {
	t.Helper()
	var stderr bytes.Buffer
	fs := flag.NewFlagSet("carequeue", flag.ContinueOnError)
	fs.SetOutput(&stderr)
	c, err := loadConfig(fs, args, &stderr)
	return c, stderr.String(), err
}

func TestLoadConfig_Environment(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		args   []string
		check  func(t *testing.T, c *vc.Config)
		stderr string
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c *vc.Config) {
				if c.APIPort != 8080 || c.Scorer != vc.ScorerNone || c.RetryMaxAttempts != 3 {
					t.Errorf("defaults = %+v", c)
				}
			},
		},
		{
			name: "env fills unset flags",
			env: map[string]string{
				"CAREQUEUE_HTTP_PORT":              "8181",
				"CAREQUEUE_SCORER":                 "openai",
				"CAREQUEUE_SCORER_API_KEY":         "sk-test",
				"CAREQUEUE_RETRY_INTERVAL_SECONDS": "30",
				"CAREQUEUE_KAFKA_BROKERS":          "k1:9092,k2:9092",
			},
			check: func(t *testing.T, c *vc.Config) {
				if c.APIPort != 8181 || c.Scorer != vc.ScorerOpenAI || c.ScorerAPIKey != "sk-test" {
					t.Errorf("config = %+v", c)
				}
				if c.RetryIntervalSeconds != 30 || len(c.KafkaBrokerList()) != 2 {
					t.Errorf("retry/kafka = %d %v", c.RetryIntervalSeconds, c.KafkaBrokerList())
				}
			},
		},
		{
			name: "cli flag beats env",
			env:  map[string]string{"CAREQUEUE_KAFKA_TOPIC": "from-env"},
			args: []string{"-kafka-topic", "from-cli"},
			check: func(t *testing.T, c *vc.Config) {
				if c.KafkaTopic != "from-cli" {
					t.Errorf("KafkaTopic = %q, want from-cli", c.KafkaTopic)
				}
			},
			stderr: "overrides env CAREQUEUE_KAFKA_TOPIC",
		},
		{
			name: "unparsable env keeps default",
			env:  map[string]string{"CAREQUEUE_RETRY_MAX_ATTEMPTS": "lots"},
			check: func(t *testing.T, c *vc.Config) {
				if c.RetryMaxAttempts != 3 {
					t.Errorf("RetryMaxAttempts = %d, want 3", c.RetryMaxAttempts)
				}
			},
			stderr: "ignoring invalid env CAREQUEUE_RETRY_MAX_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			c, stderr, err := load(t, tt.args...)
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			tt.check(t, &c.app)
			if !strings.Contains(stderr, tt.stderr) {
				t.Errorf("stderr = %q, want substring %q", stderr, tt.stderr)
			}
		})
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{"same ports", nil, []string{"-http-port", "9000", "-admin-port", "9000"}, "ports must differ"},
		{"invalid env value reaches validation", map[string]string{"CAREQUEUE_SCORER": "gemini"}, nil, "configuration validation failed"},
		{"both auth schemes", map[string]string{"CAREQUEUE_API_TOKEN": "t", "CAREQUEUE_JWT_SECRET": strings.Repeat("s", 32)}, nil, "configuration validation failed"},
		{"unknown flag", nil, []string{"-no-such-flag"}, "no-such-flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := load(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadConfig = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_VersionSkipsValidation(t *testing.T) {
	t.Setenv("CAREQUEUE_SCORER", "gemini")

	c, _, err := load(t, "-V")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !c.showVersion {
		t.Error("showVersion = false, want true")
	}
}
