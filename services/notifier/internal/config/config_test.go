package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SMTP_ADDR", "")
	cfg, err := Load(writeConfig(t, "redisAddr: \"localhost:6379\"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MailStream != "donormatch:mail" || cfg.MailGroup != "notifier" || cfg.Concurrency != 2 || cfg.LogLevel != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.SMTPAddr != "" {
		t.Fatalf("smtpAddr = %q, want empty for log delivery", cfg.SMTPAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SMTP_ADDR", "smtp.example.org:587")
	t.Setenv("MAIL_FROM", "DonorMatch <noreply@example.org>")
	t.Setenv("NOTIFIER_CONCURRENCY", "5")
	cfg, err := Load(writeConfig(t, "redisAddr: \"localhost:6379\"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.SMTPAddr != "smtp.example.org:587" || cfg.Concurrency != 5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SMTP_ADDR", "")
	t.Setenv("MAIL_FROM", "")
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"missing redis", "mailStream: jobs\n", "redisAddr is required"},
		{"smtp without sender", "redisAddr: r:6379\nsmtpAddr: smtp:25\n", "mailFrom is required"},
		{"smtp without port", "redisAddr: r:6379\nsmtpAddr: smtp\nmailFrom: a@b.org\n", "must be host:port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}
