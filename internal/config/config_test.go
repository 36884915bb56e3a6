package config

import (
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/pkg/secrets"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SERVICE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid values fall back to the default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout: got %v, want 15s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_DefaultPolicies(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		action models.ActionType
		max    int
		ipMax  int
		window time.Duration
	}{
		{models.ActionLogin, 5, 20, 15 * time.Minute},
		{models.ActionSignup, 3, 10, time.Hour},
		{models.ActionPasswordReset, 3, 10, time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			p := cfg.Limits.Identifier.For(tt.action)
			if p.MaxAttempts != tt.max || p.Window != tt.window {
				t.Errorf("identifier policy = %+v, want max %d window %v", p, tt.max, tt.window)
			}
			ip := cfg.Limits.IP.For(tt.action)
			if ip.MaxAttempts != tt.ipMax || ip.Window != tt.window {
				t.Errorf("IP policy = %+v, want max %d window %v", ip, tt.ipMax, tt.window)
			}
		})
	}

	if !cfg.Limits.Identifier.For("unknown").Unlimited {
		t.Error("unconfigured action should be unlimited")
	}
	if cfg.Cleanup.AttemptRetention != 2*time.Hour {
		t.Errorf("AttemptRetention: got %v, want 2h", cfg.Cleanup.AttemptRetention)
	}
	if !cfg.Notify.MockMode() {
		t.Error("notifier should default to mock mode")
	}
}

func TestLoad_PolicyOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOGIN_MAX_ATTEMPTS", "10")
	t.Setenv("LOGIN_WINDOW", "5m")
	t.Setenv("LOGIN_IP_MAX_ATTEMPTS", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	login := cfg.Limits.Identifier.For(models.ActionLogin)
	if login.MaxAttempts != 10 || login.Window != 5*time.Minute {
		t.Errorf("login policy = %+v", login)
	}
	ip := cfg.Limits.IP.For(models.ActionLogin)
	if ip.MaxAttempts != 50 || ip.Window != 5*time.Minute {
		t.Errorf("login IP policy = %+v", ip)
	}
}

func TestLoad_RequiredValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing token secret",
			env:     map[string]string{"DB_PASSWORD": "test"},
			wantErr: "SERVICE_TOKEN_SECRET is required",
		},
		{
			name:    "short token secret",
			env:     map[string]string{"SERVICE_TOKEN_SECRET": "short", "DB_PASSWORD": "test"},
			wantErr: "at least 16 characters",
		},
		{
			name: "production needs longer secret",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "twenty-characters-xx",
				"DB_PASSWORD":          "test",
				"ENV":                  "production",
			},
			wantErr: "at least 32 characters",
		},
		{
			name:    "missing db password",
			env:     map[string]string{"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!"},
			wantErr: "DB_PASSWORD is required",
		},
		{
			name: "retention shorter than window",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!",
				"DB_PASSWORD":          "test",
				"ATTEMPT_RETENTION":    "30m",
			},
			wantErr: "ATTEMPT_RETENTION",
		},
		{
			name: "zero cleanup interval",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!",
				"DB_PASSWORD":          "test",
				"CLEANUP_INTERVAL":     "0s",
			},
			wantErr: "CLEANUP_INTERVAL must be positive",
		},
		{
			name: "negative cleanup interval",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!",
				"DB_PASSWORD":          "test",
				"CLEANUP_INTERVAL":     "-1m",
			},
			wantErr: "CLEANUP_INTERVAL must be positive",
		},
		{
			name: "zero login max attempts",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!",
				"DB_PASSWORD":          "test",
				"LOGIN_MAX_ATTEMPTS":   "0",
			},
			wantErr: "LOGIN_MAX_ATTEMPTS must be positive",
		},
		{
			name: "negative signup window",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET": "test-secret-32-characters-long!!",
				"DB_PASSWORD":          "test",
				"SIGNUP_WINDOW":        "-1h",
			},
			wantErr: "SIGNUP_WINDOW must be positive",
		},
		{
			name: "negative IP max attempts",
			env: map[string]string{
				"SERVICE_TOKEN_SECRET":           "test-secret-32-characters-long!!",
				"DB_PASSWORD":                    "test",
				"PASSWORD_RESET_IP_MAX_ATTEMPTS": "-3",
			},
			wantErr: "PASSWORD_RESET_IP_MAX_ATTEMPTS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SERVICE_TOKEN_SECRET", "")
			t.Setenv("DB_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_WebhookSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBHOOK_PROVIDERS", "Stripe, github")
	t.Setenv("WEBHOOK_SECRET_STRIPE", "whsec_plain_value")

	master := "master-key-for-tests-0123456789ab"
	enc, err := secrets.Encrypt(master, "gh_secret_value")
	if err != nil {
		t.Fatalf("Encrypt() = %v", err)
	}
	t.Setenv("SECRETS_MASTER_KEY", master)
	t.Setenv("WEBHOOK_SECRET_GITHUB_ENC", enc)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if got := cfg.Webhook.Secrets["stripe"]; got != "whsec_plain_value" {
		t.Errorf("stripe secret = %q", got)
	}
	if got := cfg.Webhook.Secrets["github"]; got != "gh_secret_value" {
		t.Errorf("github secret = %q", got)
	}
}

func TestLoad_EncryptedSecretWithoutMasterKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBHOOK_PROVIDERS", "stripe")
	t.Setenv("WEBHOOK_SECRET_STRIPE_ENC", "AAAA")
	t.Setenv("SECRETS_MASTER_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error")
	}
}

func TestSecretsMasterKey(t *testing.T) {
	t.Setenv("SECRETS_MASTER_KEY", "")
	if _, err := SecretsMasterKey(); err == nil {
		t.Fatal("SecretsMasterKey() = nil error, want error for empty key")
	}

	// Does not depend on the values Load requires
	t.Setenv("SERVICE_TOKEN_SECRET", "")
	t.Setenv("SECRETS_MASTER_KEY", "master-key-for-tests-0123456789ab")
	key, err := SecretsMasterKey()
	if err != nil {
		t.Fatalf("SecretsMasterKey() = %v, want nil", err)
	}
	if key != "master-key-for-tests-0123456789ab" {
		t.Errorf("SecretsMasterKey() = %q", key)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	want := []string{"a", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitList = %v, want %v", got, want)
	}
	if len(splitList("  ")) != 0 {
		t.Error("splitList of blank should be empty")
	}
}
