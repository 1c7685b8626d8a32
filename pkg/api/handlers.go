package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apollonius-overlap-map/pkg/database"
	"apollonius-overlap-map/pkg/scene"
	"apollonius-overlap-map/pkg/scenestream"
)

// =======================
// Public API entry points
// =======================

// Handler wires the compute pipeline, the scene store, the response
// cache and the rate limiter together so HTTP routes stay small and
// focused on translating query parameters into scene calls.
type Handler struct {
	DB      *database.Database
	Cache   *ResponseCache
	Limiter *RateLimiter
	Stream  *scenestream.Bus
	Logf    func(string, ...any)
}

// NewHandler constructs a Handler. Cache, Limiter, Stream and Logf are
// all optional; nil simply disables the corresponding behaviour.
func NewHandler(db *database.Database, cache *ResponseCache, limiter *RateLimiter, stream *scenestream.Bus, logf func(string, ...any)) *Handler {
	return &Handler{DB: db, Cache: cache, Limiter: limiter, Stream: stream, Logf: logf}
}

// Register attaches API routes to the provided mux. We keep the method
// tiny and declarative: it simply wires URLs to helpers, avoiding
// clever routing that could obscure how pages are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/scene", h.handleScene)
	mux.HandleFunc("/api/scenes", h.handleRecentScenes)
	mux.HandleFunc("/api/share", h.handleShare)
}

// handleOverview publishes machine-readable docs so developers know
// which endpoints exist and what parameters they take.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview := struct {
		Endpoints map[string]any `json:"endpoints"`
		Limits    map[string]any `json:"limits"`
	}{
		Endpoints: map[string]any{
			"scene": map[string]any{
				"method":      "GET",
				"path":        "/api/scene",
				"query":       []string{"ax", "ay", "mode", "k", "density", "resolution"},
				"description": "Computes the Apollonius circle family and the overlap mask for the given parameters.",
			},
			"scenes": map[string]any{
				"method":      "GET",
				"path":        "/api/scenes",
				"query":       []string{"limit"},
				"description": "Lists the most recently shared scenes, newest first.",
			},
			"share": map[string]any{
				"method":      "POST",
				"path":        "/api/share",
				"query":       []string{"ax", "ay", "mode", "k", "density", "resolution"},
				"description": "Persists the scene and returns its short code; sharing the same scene twice returns the same code.",
			},
		},
		Limits: map[string]any{
			"density":    []int{scene.MinDensity, scene.MaxDensity},
			"resolution": []int{scene.MinResolution, scene.MaxResolution},
			"k":          []float64{scene.MinK, scene.MaxK},
			"span":       scene.GridSpan,
		},
	}

	h.respondJSON(w, overview)
}

// handleScene computes a scene. The mask is the expensive part, so
// the handler runs in the heavy rate-limiter lane and the JSON goes
// through the response cache keyed by the canonical parameter string:
// slider drags that settle on the same values hit the cache.
func (h *Handler) handleScene(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permit, err := h.acquire(ctx, r, RequestHeavy)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	p := ParamsFromQuery(r)
	payload, err := h.cachedScene(ctx, p)
	if err != nil {
		http.Error(w, "scene compute error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("scene compute error: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(payload); err != nil && h.Logf != nil {
		h.Logf("scene write: %v", err)
	}
}

// handleRecentScenes lists the newest shares by draining the store's
// row channel, so the handler and the SSE feed share one query path.
func (h *Handler) handleRecentScenes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permit, err := h.acquire(ctx, r, RequestGeneral)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	limit := clampInt(parseIntDefault(r.URL.Query().Get("limit"), 20), 1, 100)

	rowsCh, errCh := h.DB.RecentScenes(ctx, limit)

	rows := make([]database.SceneRow, 0, limit)
	for row := range rowsCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		http.Error(w, "scene list error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("scene list error: %v", err)
		}
		return
	}

	h.respondJSON(w, struct {
		Limit  int                 `json:"limit"`
		Scenes []database.SceneRow `json:"scenes"`
	}{Limit: limit, Scenes: rows})
}

// handleShare persists a scene and returns its short code. The scene
// is computed first so the stored row carries honest summary numbers,
// then deduped by canonical key inside SaveScene. New shares are
// published to the live feed.
func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	permit, err := h.acquire(ctx, r, RequestHeavy)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	p := ParamsFromQuery(r)
	res, err := scene.Compute(p)
	if err != nil {
		http.Error(w, "scene compute error", http.StatusInternalServerError)
		return
	}

	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		http.Error(w, "encode params", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	code, err := h.DB.SaveScene(ctx, res.Params.Key(), string(paramsJSON), res.CircleCount, res.OverlapFraction, now)
	if err != nil {
		http.Error(w, "share error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("share error: %v", err)
		}
		return
	}

	if h.Stream != nil {
		h.Stream.Publish(scenestream.Event{
			Code:      code,
			Params:    string(paramsJSON),
			Circles:   res.CircleCount,
			Overlap:   res.OverlapFraction,
			CreatedAt: now.Unix(),
		})
	}

	h.respondJSON(w, struct {
		Code    string  `json:"code"`
		URL     string  `json:"url"`
		Circles int     `json:"circles"`
		Overlap float64 `json:"overlap"`
	}{
		Code:    code,
		URL:     "/s/" + code,
		Circles: res.CircleCount,
		Overlap: res.OverlapFraction,
	})
}

// cachedScene returns the JSON for a scene, computing it only on a
// cache miss. With the cache disabled it computes directly.
func (h *Handler) cachedScene(ctx context.Context, p scene.Params) ([]byte, error) {
	loader := func(ctx context.Context) ([]byte, error) {
		res, err := scene.Compute(p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	if h.Cache == nil {
		return loader(ctx)
	}
	payload, err := h.Cache.Get(ctx, p.Key(), loader)
	if err == errCacheDisabled || err == errCacheStopped {
		return loader(ctx)
	}
	return payload, err
}

// acquire reserves a limiter slot for the client IP; with no limiter
// configured it returns a nil permit whose Release is a no-op.
func (h *Handler) acquire(ctx context.Context, r *http.Request, kind RequestKind) (*Permit, error) {
	if h.Limiter == nil {
		return nil, nil
	}
	return h.Limiter.Acquire(ctx, ClientIP(r), kind)
}

// =====================
// Utility helpers
// =====================

// ParamsFromQuery reads scene parameters from the URL, falling back to
// defaults for anything absent or unparsable. Clamping happens inside
// the scene package, so this stays a dumb translation layer.
func ParamsFromQuery(r *http.Request) scene.Params {
	q := r.URL.Query()
	def := scene.Defaults()
	return scene.Params{
		Ax:         parseFloatDefault(q.Get("ax"), def.Ax),
		Ay:         parseFloatDefault(q.Get("ay"), def.Ay),
		Mode:       strings.TrimSpace(q.Get("mode")),
		K:          parseFloatDefault(q.Get("k"), def.K),
		Density:    parseIntDefault(q.Get("density"), def.Density),
		Resolution: parseIntDefault(q.Get("resolution"), def.Resolution),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// ClientIP extracts the host part of the remote address so the rate
// limiter can queue per client. Exported because the poster and SSE
// routes in package main acquire limiter slots themselves.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
