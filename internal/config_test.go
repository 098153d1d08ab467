package internal

import (
	"testing"
)

func TestAuthConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
		enabled bool
	}{
		{name: "disabled", cfg: AuthConfig{Mode: AuthModeDisabled}, wantErr: false, enabled: false},
		{name: "empty mode defaults to disabled", cfg: AuthConfig{}, wantErr: false, enabled: false},
		{name: "token with token", cfg: AuthConfig{Mode: AuthModeToken, Token: "secret"}, wantErr: false, enabled: true},
		{name: "token without token", cfg: AuthConfig{Mode: AuthModeToken}, wantErr: true},
		{name: "unknown mode", cfg: AuthConfig{Mode: "oauth"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && tc.cfg.AuthEnabled() != tc.enabled {
				t.Errorf("AuthEnabled() = %v, want %v", tc.cfg.AuthEnabled(), tc.enabled)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("Address() = %q, want :8080", cfg.App.HTTP.Address())
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("default config should not enable auth")
	}
}

func TestConfigValidateRejectsBadPort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestConfigValidateRequiresAnalyst(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Analyst.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty analyst name")
	}
}
