package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	value, err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: 0}, discardLogger(), func(context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if value != "ok" {
		t.Fatalf("unexpected value %q", value)
	}
	if calls != 5 {
		t.Fatalf("expected 5 invocations, got %d", calls)
	}
}

func TestDoShortCircuitsOnSuccess(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: time.Hour}, discardLogger(), func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single invocation, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always fails")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: 0}, discardLogger(), func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the final attempt's error unchanged, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
}

func TestDoSingleAttemptMeansNoRetry(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 1, Delay: 0}, discardLogger(), func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected a single invocation, got %d", calls)
	}
}

func TestDoRejectsInvalidPolicy(t *testing.T) {
	_, err := Do(context.Background(), Policy{MaxAttempts: 0}, discardLogger(), func(context.Context) (struct{}, error) {
		t.Fatal("op must not run under an invalid policy")
		return struct{}{}, nil
	})
	if err == nil {
		t.Fatal("expected a policy validation error")
	}
}

func TestDoAbortsWaitOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, Policy{MaxAttempts: 3, Delay: time.Hour}, discardLogger(), func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errors.New("boom")
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not abort the retry wait on cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected a single invocation before cancellation, got %d", calls)
	}
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := DoRequest(context.Background(), server.Client(), req, Policy{MaxAttempts: 3, Delay: 0}, discardLogger())
	if err != nil {
		t.Fatalf("DoRequest returned error: %v", err)
	}
	defer resp.Body.Close()
	if requests != 3 {
		t.Fatalf("expected 3 requests, got %d", requests)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestDoRequestReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	_, err = DoRequest(context.Background(), server.Client(), req, Policy{MaxAttempts: 2, Delay: 0}, discardLogger())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code %d", statusErr.Code)
	}
}
