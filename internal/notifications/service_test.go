package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docbot/internal/config"
	"docbot/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var requests []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.NotifyWorkflowFailed(context.Background(), "PDF Merge", "1555@s.whatsapp.net", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifyWorkflowFailedFormatsPayload(t *testing.T) {
	srv, requests := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if !notifications.Enabled(svc) {
		t.Fatal("expected ntfy service")
	}

	if err := svc.NotifyWorkflowFailed(context.Background(), "Compress Pdf", "15550001234@s.whatsapp.net", errors.New("ghostscript exited 1")); err != nil {
		t.Fatalf("NotifyWorkflowFailed: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.title != "docbot - Workflow Failed" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.tags != "docbot,workflow,error" || got.priority != "high" {
		t.Fatalf("unexpected headers: %+v", got)
	}
	if !strings.Contains(got.body, "Compress Pdf failed for *******1234: ghostscript exited 1") {
		t.Fatalf("unexpected body %q", got.body)
	}
	if strings.Contains(got.body, "15550001234") {
		t.Fatalf("sender not masked: %q", got.body)
	}
}

func TestNotifyStoreDegraded(t *testing.T) {
	srv, requests := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyStoreDegraded(context.Background(), "redis", errors.New("connection refused")); err != nil {
		t.Fatalf("NotifyStoreDegraded: %v", err)
	}
	if got := (*requests)[0]; !strings.Contains(got.body, "redis state store unavailable") || !strings.Contains(got.body, "connection refused") {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
