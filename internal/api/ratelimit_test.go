package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.5:4321", nil, "10.0.0.5"},
		{"forwarded single", "10.0.0.5:4321", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded chain", "10.0.0.5:4321", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"real ip", "10.0.0.5:4321", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "198.51.100.2"},
		{"no port", "10.0.0.5", nil, "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3, CleanupInterval: time.Minute})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("Request %d within burst rejected", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("Expected request over burst to be rejected")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("Expected another IP to have its own budget")
	}

	stats := rl.GetStats()
	if stats["allowed"] != 4 || stats["rejected"] != 1 {
		t.Errorf("Expected 4 allowed / 1 rejected, got %v", stats)
	}

	if n := rl.cleanup(time.Now()); n != 0 {
		t.Errorf("Expected fresh limiters to survive cleanup, removed %d", n)
	}
	if n := rl.cleanup(time.Now().Add(time.Hour)); n != 2 {
		t.Errorf("Expected 2 stale limiters removed, got %d", n)
	}
	if !rl.Allow("1.2.3.4") {
		t.Error("Expected a fresh budget after cleanup")
	}
}

func TestWebSocketRateLimiter(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	if !wrl.Allow("a") || !wrl.Allow("a") {
		t.Fatal("Expected two connections to be allowed")
	}
	if wrl.Allow("a") {
		t.Error("Expected third connection to be rejected")
	}
	if !wrl.Allow("b") {
		t.Error("Expected other IP to be allowed")
	}

	wrl.Release("a")
	if got := wrl.GetConnectionCount("a"); got != 1 {
		t.Errorf("Expected 1 connection after release, got %d", got)
	}
	if !wrl.Allow("a") {
		t.Error("Expected released slot to be reusable")
	}
	if got := wrl.GetConnectionCount("unknown"); got != 0 {
		t.Errorf("Expected 0 for unknown IP, got %d", got)
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	extra := []string{"https://swarm.example.org"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"https://swarm.example.org", true},
		{"", false},
		{"http://localhost.evil.example", false},
		{"https://evil.example", false},
		{"https://swarm.example.org.evil", false},
	}

	for _, tt := range tests {
		if got := IsAllowedOrigin(tt.origin, extra); got != tt.want {
			t.Errorf("IsAllowedOrigin(%q): expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}
