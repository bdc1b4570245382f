package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeTransitions(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"valid", `["new", "cancelled"]`, []string{"new", "cancelled"}},
		{"empty list", `[]`, []string{}},
		{"empty input", ``, []string{}},
		{"malformed json", `{"oops"`, []string{}},
		{"wrong shape", `{"a": 1}`, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeTransitions([]byte(tc.raw))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestPriorityName(t *testing.T) {
	if got := PriorityName(1); got != "High" {
		t.Fatalf("priority 1: got %q", got)
	}
	if got := PriorityName(2); got != "Medium" {
		t.Fatalf("priority 2: got %q", got)
	}
	if got := PriorityName(3); got != "Low" {
		t.Fatalf("priority 3: got %q", got)
	}
	if got := PriorityName(99); got != "Medium" {
		t.Fatalf("priority 99: got %q", got)
	}
}

func TestDefaultSettingsAllEnabled(t *testing.T) {
	settings := defaultSettings("petrov")
	if settings.Username != "petrov" {
		t.Fatalf("username: got %q", settings.Username)
	}
	if !settings.EmailEnabled || !settings.PushEnabled || !settings.NotifyNewRequest ||
		!settings.NotifyStatusChange || !settings.NotifyDeadline ||
		!settings.NotifyOverdue || !settings.NotifyDailySummary {
		t.Fatalf("expected every channel enabled by default: %+v", settings)
	}
	if settings.QuietHoursStart != nil || settings.QuietHoursEnd != nil {
		t.Fatal("expected no quiet hours by default")
	}
}

func TestMigrationFilesWellFormed(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migration files")
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			t.Fatalf("unexpected migration file %s", name)
		}
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(strings.TrimSpace(string(contents))) == 0 {
			t.Fatalf("migration %s is empty", name)
		}
	}
}
