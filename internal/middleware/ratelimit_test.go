package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newLimitedRequest(method, target, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	return req
}

// --- LoginMiddleware のテスト ---

func TestLoginRateLimit_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       2,
		LoginBurst:      5,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.LoginMiddleware()

	handlerCallCount := 0
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.1:51000"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestLoginRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      2,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.LoginMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.2:51000"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.2:51000"))

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}

func TestLoginRateLimit_Returns429WithRetryAfterHeader(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      1,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.LoginMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 1回目は通る
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.3:51000"))

	// 2回目は429になる
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.3:51000"))

	if w2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
	}

	retryAfter := w2.Result().Header.Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be present")
	}

	// Retry-Afterは数値（秒）であること
	retrySeconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", retryAfter)
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}
}

func TestLoginRateLimit_IsolatesClientIPs(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      1,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.LoginMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// IP Aの1回目は通る
	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.10:51000"))
	if wA.Result().StatusCode != http.StatusOK {
		t.Errorf("ip A first request: status = %d, want %d", wA.Result().StatusCode, http.StatusOK)
	}

	// IP Aの2回目は429
	wA2 := httptest.NewRecorder()
	handler.ServeHTTP(wA2, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.10:52000"))
	if wA2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("ip A second request: status = %d, want %d", wA2.Result().StatusCode, http.StatusTooManyRequests)
	}

	// IP Bの1回目は通る（IP Aのレートに影響されない）
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.11:51000"))
	if wB.Result().StatusCode != http.StatusOK {
		t.Errorf("ip B first request: status = %d, want %d", wB.Result().StatusCode, http.StatusOK)
	}
}

// リバースプロキシ経由の場合はX-Forwarded-Forの先頭IPで制限する
func TestLoginRateLimit_UsesForwardedForHeader(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      1,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.LoginMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 同一プロキシ経由でも転送元IPが異なれば独立して制限される
	req1 := newLimitedRequest(http.MethodPost, "/api/login", "10.0.0.1:40000")
	req1.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)

	req2 := newLimitedRequest(http.MethodPost, "/api/login", "10.0.0.1:40001")
	req2.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)

	if w1.Result().StatusCode != http.StatusOK || w2.Result().StatusCode != http.StatusOK {
		t.Error("different forwarded IPs should not share a limiter")
	}

	// 同一転送元IPの2回目は429
	req3 := newLimitedRequest(http.MethodPost, "/api/login", "10.0.0.1:40002")
	req3.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, req3)

	if w3.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w3.Result().StatusCode, http.StatusTooManyRequests)
	}
}

// --- TrackMiddleware のテスト ---

func TestTrackRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       100,
		LoginBurst:      200,
		TrackRate:       1,
		TrackBurst:      1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.TrackMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 1回目は通る
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, newLimitedRequest(http.MethodPost, "/api/track", "203.0.113.20:51000"))
	if w1.Result().StatusCode != http.StatusOK {
		t.Errorf("request 1: status = %d, want %d", w1.Result().StatusCode, http.StatusOK)
	}

	// 2回目は429
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, newLimitedRequest(http.MethodPost, "/api/track", "203.0.113.20:51000"))
	if w2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("request 2: status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
	}

	if w2.Result().Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be present")
	}
}

func TestTrackRateLimit_IndependentFromLoginLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      1,
		TrackRate:       1,
		TrackBurst:      1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	loginHandler := rl.LoginMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	trackHandler := rl.TrackMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// ログインのバーストを消費
	w1 := httptest.NewRecorder()
	loginHandler.ServeHTTP(w1, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.30:51000"))

	// ログインは使い果たしたが、施主照会はまだ使える
	w2 := httptest.NewRecorder()
	trackHandler.ServeHTTP(w2, newLimitedRequest(http.MethodPost, "/api/track", "203.0.113.30:51000"))

	if w2.Result().StatusCode != http.StatusOK {
		t.Errorf("track should still be allowed: status = %d, want %d",
			w2.Result().StatusCode, http.StatusOK)
	}
}

// --- 429レスポンスフォーマットのテスト ---

func TestRateLimit_429ResponseIsJSON(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       1,
		LoginBurst:      1,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト消費
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.40:51000"))

	// 429レスポンス
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.40:51000"))

	resp := w2.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body["code"] == "" {
		t.Error("expected 'code' field in error response")
	}
	if body["message"] == "" {
		t.Error("expected 'message' field in error response")
	}
	if body["category"] == "" {
		t.Error("expected 'category' field in error response")
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := RateLimiterConfig{
		LoginRate:       2,
		LoginBurst:      5,
		TrackRate:       1,
		TrackBurst:      10,
		CleanupInterval: 50 * time.Millisecond, // テスト用に短く
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// リクエストを発行してエントリを作成
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newLimitedRequest(http.MethodPost, "/api/login", "203.0.113.50:51000"))

	// エントリが存在することを確認
	if rl.LoginLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// エントリのTTLはCleanupIntervalの2倍（100ms）。200ms待てば削除される
	time.Sleep(200 * time.Millisecond)

	if count := rl.LoginLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

// --- デフォルト設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.LoginRate == 0 {
		t.Error("LoginRate should not be 0")
	}
	if cfg.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", cfg.LoginBurst)
	}
	if cfg.TrackRate == 0 {
		t.Error("TrackRate should not be 0")
	}
	if cfg.TrackBurst != 30 {
		t.Errorf("TrackBurst = %d, want 30", cfg.TrackBurst)
	}
}
