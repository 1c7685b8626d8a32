package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"apollonius-overlap-map/pkg/scene"
)

// TestParamsFromQuery checks query translation and the fallbacks for
// absent or garbage values.
func TestParamsFromQuery(t *testing.T) {
	def := scene.Defaults()
	tests := []struct {
		name string
		url  string
		want scene.Params
	}{
		{
			"full",
			"/api/scene?ax=1.5&ay=-2&mode=lcm&k=2&density=9&resolution=150",
			scene.Params{Ax: 1.5, Ay: -2, Mode: "lcm", K: 2, Density: 9, Resolution: 150},
		},
		{
			"empty falls back to defaults",
			"/api/scene",
			scene.Params{Ax: def.Ax, Ay: def.Ay, Mode: "", K: def.K, Density: def.Density, Resolution: def.Resolution},
		},
		{
			"garbage falls back per field",
			"/api/scene?ax=nope&density=many",
			scene.Params{Ax: def.Ax, Ay: def.Ay, Mode: "", K: def.K, Density: def.Density, Resolution: def.Resolution},
		},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", tc.url, nil)
		if got := ParamsFromQuery(r); got != tc.want {
			t.Errorf("%s: ParamsFromQuery = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

// TestLimiterSequencing acquires two general permits for one IP and
// checks the second only proceeds after the first releases.
func TestLimiterSequencing(t *testing.T) {
	limiter := NewRateLimiter(0)

	first, err := limiter.Acquire(context.Background(), "10.0.0.1", RequestGeneral)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		second, err := limiter.Acquire(context.Background(), "10.0.0.1", RequestGeneral)
		if err == nil {
			second.Release()
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second permit granted while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second permit never granted after release")
	}
}

// TestLimiterHeavyCooldown runs two heavy requests back to back and
// expects the second to report the cooldown wait.
func TestLimiterHeavyCooldown(t *testing.T) {
	limiter := NewRateLimiter(30 * time.Millisecond)

	first, err := limiter.Acquire(context.Background(), "10.0.0.2", RequestHeavy)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	first.Release()

	start := time.Now()
	second, err := limiter.Acquire(context.Background(), "10.0.0.2", RequestHeavy)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	defer second.Release()
	if since := time.Since(start); since < 20*time.Millisecond {
		t.Fatalf("second heavy permit granted after %v, want the cooldown to apply", since)
	}
	if !second.WaitNotice {
		t.Fatal("second permit did not report a wait")
	}
}

// TestLimiterContextCancel cancels a queued acquire and expects the
// context error instead of a hang.
func TestLimiterContextCancel(t *testing.T) {
	limiter := NewRateLimiter(0)

	first, err := limiter.Acquire(context.Background(), "10.0.0.3", RequestGeneral)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := limiter.Acquire(ctx, "10.0.0.3", RequestGeneral); err == nil {
		t.Fatal("queued Acquire succeeded despite cancelled context")
	}
}

// TestClientIP strips the port and tolerates bare addresses.
func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:4431"
	if got := ClientIP(r); got != "192.0.2.7" {
		t.Fatalf("ClientIP = %q, want 192.0.2.7", got)
	}
	r.RemoteAddr = "192.0.2.8"
	if got := ClientIP(r); got != "192.0.2.8" {
		t.Fatalf("ClientIP without port = %q", got)
	}
}
