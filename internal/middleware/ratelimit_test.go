package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// バースト超過後のリクエストが429になることを検証
func TestRateLimiter_CallStart_Burst(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     rate.Limit(2),
		GeneralBurst:    120,
		CallStartRate:   rate.Limit(0.01),
		CallStartBurst:  2,
		CleanupInterval: time.Minute,
	}
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.CallStartMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/calls", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// バースト分は通過
	for i := 0; i < 2; i++ {
		if code := do(); code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, code)
		}
	}

	// バースト超過で429
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/calls", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

// ユーザーごとに独立したリミッターが使われることを検証
func TestRateLimiter_PerUser(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.CallStartBurst = 1
	cfg.CallStartRate = rate.Limit(0.01)
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.CallStartMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(userID string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/calls", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("user-a"); code != http.StatusCreated {
		t.Fatalf("user-a first request: status = %d, want 201", code)
	}
	if code := do("user-a"); code != http.StatusTooManyRequests {
		t.Errorf("user-a second request: status = %d, want 429", code)
	}
	// 別ユーザーは影響を受けない
	if code := do("user-b"); code != http.StatusCreated {
		t.Errorf("user-b first request: status = %d, want 201", code)
	}

	if rl.CallStartLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.CallStartLimiterCount())
	}
}

// 未認証コンテキストが401になることを検証
func TestRateLimiter_General_Unauthenticated(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
