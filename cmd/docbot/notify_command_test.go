package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNotifyTestRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("DOCBOT_NTFY_TOPIC", "")

	_, _, err := runCLI(t, []string{"notify", "test"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestNotifyTestPostsToTopic(t *testing.T) {
	var title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	t.Setenv("DOCBOT_NTFY_TOPIC", srv.URL)

	out, _, err := runCLI(t, []string{"notify", "test"}, env.configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if title != "docbot - Test" {
		t.Fatalf("unexpected title %q", title)
	}
}
