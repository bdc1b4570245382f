package push

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	svc := NewService(Config{})
	if svc.IsConfigured() {
		t.Error("empty config should not be configured")
	}

	svc = NewService(Config{PublicKey: "pub", PrivateKey: "priv"})
	if !svc.IsConfigured() {
		t.Error("key pair should be configured")
	}
}

func TestSendUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.Send("{}", NewPayload("t", "b")); err == nil {
		t.Error("expected error when sending without VAPID keys")
	}
}

func TestSendRejectsMalformedSubscription(t *testing.T) {
	svc := NewService(Config{PublicKey: "pub", PrivateKey: "priv"})
	err := svc.Send("{not json", NewPayload("t", "b"))
	if err == nil || !strings.Contains(err.Error(), "parse subscription") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestPayloadShape(t *testing.T) {
	payload := NewPayload("New request", "REQ-000042 created")
	payload.Tag = "status-42"
	payload.RequireInteraction = true
	payload.Data = PayloadData{RequestID: 42, URL: "/requests/42"}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if decoded["icon"] != "/icon-192x192.png" {
		t.Errorf("icon = %v", decoded["icon"])
	}
	if decoded["badge"] != "/badge-72x72.png" {
		t.Errorf("badge = %v", decoded["badge"])
	}
	if decoded["tag"] != "status-42" {
		t.Errorf("tag = %v", decoded["tag"])
	}
	if decoded["requireInteraction"] != true {
		t.Errorf("requireInteraction = %v", decoded["requireInteraction"])
	}
	data, ok := decoded["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", decoded["data"])
	}
	if data["requestId"] != float64(42) {
		t.Errorf("data.requestId = %v", data["requestId"])
	}
	if data["url"] != "/requests/42" {
		t.Errorf("data.url = %v", data["url"])
	}
}
