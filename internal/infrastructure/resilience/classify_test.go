package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

func TestClassifyTransient(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"canceled", context.Canceled, false, false},
		{"unavailable", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}, true, true},
		{"throttled", fmt.Errorf("wrapped: %w", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}), true, true},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		got := ClassifyTransient(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.recordFailure {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestWrapTemporaryMarksRetryableErrors(t *testing.T) {
	err := WrapTemporary("search", &HTTPStatusError{StatusCode: http.StatusBadGateway}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}

	permanent := errors.New("boom")
	if got := WrapTemporary("search", permanent, nil); got != permanent {
		t.Fatalf("expected error unchanged, got %v", got)
	}
}

func TestNewHTTPStatusErrorKeepsBody(t *testing.T) {
	rec := httptest.NewRecorder()
	http.Error(rec, "collection missing", http.StatusNotFound)

	err := NewHTTPStatusError("qdrant", "search", rec.Result())
	if err.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", err.StatusCode)
	}
	if !strings.Contains(err.Error(), "collection missing") || !strings.HasPrefix(err.Error(), "qdrant search status") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNewHTTPStatusErrorReadsRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Header:     http.Header{"Retry-After": []string{"7"}},
		Body:       io.NopCloser(strings.NewReader("slow down")),
	}
	err := NewHTTPStatusError("ollama", "generate", resp)
	if err.RetryAfter != 7*time.Second || err.Body != "slow down" {
		t.Fatalf("unexpected status error %+v", err)
	}

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
	resp.Body = io.NopCloser(strings.NewReader(""))
	if got := NewHTTPStatusError("ollama", "generate", resp).RetryAfter; got != 0 {
		t.Fatalf("HTTP-date form must be ignored, got %v", got)
	}
}
