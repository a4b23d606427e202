package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/runlock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTrigger struct {
	summary   model.RunSummary
	err       error
	calls     int
	cancelled bool
}

func (f *fakeTrigger) Trigger(ctx context.Context) (model.RunSummary, error) {
	f.calls++
	f.cancelled = ctx.Err() != nil
	return f.summary, f.err
}

func serve(t *testing.T, trigger Trigger, token string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := NewEcho(discardLogger(), NewHttpHandler(trigger, token, discardLogger()))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestIndexAndHealth(t *testing.T) {
	tests := []struct {
		path       string
		wantStatus string
	}{
		{"/", "running"},
		{"/health", "healthy"},
		{"/health/", "healthy"},
	}
	for _, tt := range tests {
		rec := serve(t, &fakeTrigger{}, "", httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", tt.path, rec.Code)
			continue
		}
		var body statusResponse
		decode(t, rec, &body)
		if body.Status != tt.wantStatus {
			t.Errorf("GET %s status = %q, want %q", tt.path, body.Status, tt.wantStatus)
		}
	}
}

func TestWebhook_Success(t *testing.T) {
	trigger := &fakeTrigger{summary: model.RunSummary{
		Success: true, Found: 2, Processed: 2, RecordsAppended: 3,
		Message: "Processed 2/2 emails and added 3 jobs.",
	}}

	rec := serve(t, trigger, "", httptest.NewRequest(http.MethodPost, "/webhook", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got model.RunSummary
	decode(t, rec, &got)
	if got.RecordsAppended != 3 || got.Message != trigger.summary.Message {
		t.Errorf("body = %+v", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response should carry a request id")
	}
}

func TestWebhook_FatalRunIs500(t *testing.T) {
	trigger := &fakeTrigger{summary: model.RunSummary{Success: false, Error: "sheet not accessible"}}

	rec := serve(t, trigger, "", httptest.NewRequest(http.MethodPost, "/webhook", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var got model.RunSummary
	decode(t, rec, &got)
	if got.Success || got.Error != "sheet not accessible" {
		t.Errorf("body = %+v", got)
	}
}

func TestWebhook_BusyIs409(t *testing.T) {
	rec := serve(t, &fakeTrigger{err: runlock.ErrBusy}, "", httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestWebhook_LockErrorIs500(t *testing.T) {
	rec := serve(t, &fakeTrigger{err: errors.New("permission denied")}, "", httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestWebhook_Token(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"right", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &fakeTrigger{summary: model.RunSummary{Success: true}}
			req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			if tt.header != "" {
				req.Header.Set(TokenHeader, tt.header)
			}

			rec := serve(t, trigger, "s3cret", req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized && trigger.calls != 0 {
				t.Error("run must not start without a valid token")
			}
		})
	}
}

func TestWebhook_RunIgnoresClientDisconnect(t *testing.T) {
	trigger := &fakeTrigger{summary: model.RunSummary{Success: true}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil).WithContext(ctx)

	serve(t, trigger, "", req)

	if trigger.cancelled {
		t.Error("run context should not inherit the request cancellation")
	}
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	rec := serve(t, &fakeTrigger{}, "", httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewHttpHandler(&fakeTrigger{}, "", discardLogger()), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
