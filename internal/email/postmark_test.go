package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendPasswordReset(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@maycafe.test", "https://maycafe.test",
		WithEndpoint(server.URL), WithHTTPClient(server.Client()))

	if err := client.SendPasswordReset(context.Background(), "alice@example.com", "alice", "abc123"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" || received.From != "noreply@maycafe.test" {
		t.Errorf("To/From = %q/%q", received.To, received.From)
	}
	if received.Subject != "Reset your May Cafe password" {
		t.Errorf("Subject = %q", received.Subject)
	}
	if !strings.Contains(received.TextBody, "https://maycafe.test/reset-password?token=abc123") {
		t.Errorf("text body missing link: %q", received.TextBody)
	}
}

func TestSendPasswordResetNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@maycafe.test", "https://maycafe.test")
	if err := client.SendPasswordReset(context.Background(), "a@example.com", "a", "t"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestSendPasswordResetAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@maycafe.test", "https://maycafe.test", WithEndpoint(server.URL))
	if err := client.SendPasswordReset(context.Background(), "a@example.com", "a", "t"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestConfigured(t *testing.T) {
	if !NewClient("token", "from@test.com", "https://test.com").Configured() {
		t.Error("expected Configured() = true")
	}
	if NewClient("", "from@test.com", "https://test.com").Configured() {
		t.Error("expected Configured() = false")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Error("nil client should not be configured")
	}
}
