package email

import (
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestFromHeader(t *testing.T) {
	svc := NewService(Config{From: "ndt@example.com", FromName: "NDT Desk"})
	if got := svc.fromHeader(); got != "NDT Desk <ndt@example.com>" {
		t.Errorf("fromHeader() = %q", got)
	}

	svc = NewService(Config{From: "ndt@example.com"})
	if got := svc.fromHeader(); got != "ndt@example.com" {
		t.Errorf("fromHeader() = %q", got)
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "subject", "body"); err == nil {
		t.Error("expected error when sending without configuration")
	}
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "subject", "<p>body</p>"); err == nil {
		t.Error("expected error when sending HTML without configuration")
	}
}
