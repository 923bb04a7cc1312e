package profile

import (
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		profile     Profile
		expectError bool
		wantMode    string
	}{
		{
			name:     "sqlite with defaults",
			profile:  Profile{Mode: "dev", Driver: "sqlite", Data: dir},
			wantMode: "dev",
		},
		{
			name:     "unknown mode falls back to dev",
			profile:  Profile{Mode: "staging", Driver: "sqlite", Data: dir},
			wantMode: "dev",
		},
		{
			name:        "postgres requires dsn",
			profile:     Profile{Mode: "prod", Driver: "postgres", Data: dir},
			expectError: true,
		},
		{
			name:     "postgres with dsn",
			profile:  Profile{Mode: "prod", Driver: "postgres", Data: dir, DSN: "postgres://chatd@localhost/chatd"},
			wantMode: "prod",
		},
		{
			name:        "unknown driver rejected",
			profile:     Profile{Mode: "dev", Driver: "mysql", Data: dir},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.expectError {
				t.Fatalf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
			if err != nil {
				return
			}
			if tt.profile.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", tt.profile.Mode, tt.wantMode)
			}
		})
	}
}

func TestValidateSQLiteDefaultDSN(t *testing.T) {
	dir := t.TempDir()
	p := Profile{Mode: "dev", Driver: "sqlite", Data: dir}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	want := filepath.Join(dir, "chatd_dev.db")
	if p.DSN != want {
		t.Errorf("DSN = %q, want %q", p.DSN, want)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHATD_GEN_PROVIDER", "deepseek")
	t.Setenv("CHATD_GEN_MODEL", "deepseek-chat")
	t.Setenv("CHATD_GEN_API_KEY", "test-key")
	t.Setenv("CHATD_GEN_TIMEOUT_SECONDS", "60")

	p := Profile{}
	p.FromEnv()

	if p.GenProvider != "deepseek" {
		t.Errorf("GenProvider = %q, want deepseek", p.GenProvider)
	}
	if p.GenModel != "deepseek-chat" {
		t.Errorf("GenModel = %q, want deepseek-chat", p.GenModel)
	}
	if p.GenTimeout != 60 {
		t.Errorf("GenTimeout = %d, want 60", p.GenTimeout)
	}
	if p.GenMaxTokens != 2048 {
		t.Errorf("GenMaxTokens = %d, want default 2048", p.GenMaxTokens)
	}
}
