package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testHandler() *Handler {
	return New(nil, nil, nil, nil, slog.Default())
}

func TestListThreadsRequiresIdentity(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messaging/threads?place_id=p1", nil)
	rec := httptest.NewRecorder()
	h.ListThreads(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListThreadsRequiresPlaceID(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messaging/threads", nil)
	req.Header.Set("X-Account-Id", "acc-1")
	rec := httptest.NewRecorder()
	h.ListThreads(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReplyRejectsEmptyBody(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messaging/threads/reply", strings.NewReader(`{"thread_id":"t1","body":"  "}`))
	req.Header.Set("X-Account-Id", "acc-1")
	rec := httptest.NewRecorder()
	h.Reply(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPublicPostValidatesInput(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/messages", strings.NewReader(`{"place_id":"p1"}`))
	rec := httptest.NewRecorder()
	h.PublicPost(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPutNotifySettingsRejectsUnknownChannel(t *testing.T) {
	h := testHandler()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/messaging/settings", strings.NewReader(`{"place_id":"p1","channel":"pigeon","recipient":"x","enabled":true}`))
	req.Header.Set("X-Account-Id", "acc-1")
	rec := httptest.NewRecorder()
	h.PutNotifySettings(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPreviewTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := preview(long)
	if len(got) != 123 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected preview %q (len %d)", got, len(got))
	}
	if preview("short") != "short" {
		t.Fatal("short bodies should pass through")
	}
}
