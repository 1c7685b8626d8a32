package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"apollonius-overlap-map/pkg/api"
	"apollonius-overlap-map/pkg/apollonius"
	"apollonius-overlap-map/pkg/database"
	"apollonius-overlap-map/pkg/logger"
	"apollonius-overlap-map/pkg/qrshare"
	"apollonius-overlap-map/pkg/raster"
	"apollonius-overlap-map/pkg/render"
	"apollonius-overlap-map/pkg/scene"
	"apollonius-overlap-map/pkg/scenestream"
)

//go:embed public_html/*
var content embed.FS

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: genji, chai, sqlite, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for genji, chai, sqlite, duckdb drivers.)")
var dbConn = flag.String("db-conn", "", "Full connection string; overrides the individual -db-* flags (applicable for pgx driver)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "ApolloniusOverlapMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")
var defaultAx = flag.Float64("default-ax", 0.5, "Default anchor X coordinate")
var defaultAy = flag.Float64("default-ay", 0.5, "Default anchor Y coordinate")
var defaultK = flag.Float64("default-k", 0.5, "Default fixed ratio k")
var defaultMode = flag.String("default-mode", "fixed", `Default ratio mode: "fixed" or "lcm"`)
var defaultDensity = flag.Int("default-density", 7, "Default generator grid density per axis")
var defaultResolution = flag.Int("default-resolution", 100, "Default raster mesh resolution per axis")
var cacheTTL = flag.Duration("cache-ttl", 30*time.Second, "TTL of the scene response cache; 0 disables caching")

var CompileVersion = "dev"

var db *database.Database
var stream *scenestream.Bus
var limiter *api.RateLimiter

// withServerHeader wraps any http.Handler, adding the header
// "Server: apollonius-overlap-map/<CompileVersion>".
//
// A HEAD request to "/" is answered 200 OK with no body so probes can
// see the service is alive without rendering the page.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "apollonius-overlap-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs:
//   - :80  — ACME HTTP-01 + 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// When autocert cannot issue a cert for a host/SNI, the server still
// presents the previously obtained fallback cert, which silences the
// "host not configured" noise for bare-IP requests.
//
// Compatibility: TLS ≥ 1.0, ALPN h2/http1.1/http1.0. All errors are
// only logged.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			// Allow bare and www.<domain>
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP address? Don't block, just don't request a cert.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	// :80 (challenge + redirect)
	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily certificate check.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	// :443 (HTTPS)
	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS10
	tlsCfg.NextProtos = append([]string{"http/1.0"}, tlsCfg.NextProtos...)

	// Fallback cert for IPs / odd SNI.
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443 (TLS ≥1.0, ALPN h2/http1.1/1.0)", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

// isClientDisconnect returns true for network errors indicating that the client
// has gone away (e.g., browser navigated away or closed the tab) while we were
// writing the response. These are normal and should not be logged as errors.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// baseURL reconstructs the absolute prefix for share links and QR
// payloads. With -domain set we always hand out the canonical HTTPS
// form regardless of how the request reached us.
func baseURL(r *http.Request) string {
	if *domain != "" {
		return "https://" + *domain
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// =====================
// Translations
// =====================

var translations map[string]map[string]string

func loadTranslations(fs embed.FS, filename string) {
	file, err := fs.Open(filename)
	if err != nil {
		log.Fatalf("Error opening translation file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Fatalf("Error reading translation file: %v", err)
	}

	if err := json.Unmarshal(data, &translations); err != nil {
		log.Fatalf("Error parsing translations: %v", err)
	}
}

func getPreferredLanguage(r *http.Request) string {
	langHeader := r.Header.Get("Accept-Language")
	if langHeader == "" {
		return "en"
	}

	supported := map[string]struct{}{
		"en": {}, "ru": {}, "de": {}, "es": {}, "fr": {}, "zh": {}, "pt": {}, "ja": {},
	}

	// Normalize synonyms down to the supported base codes.
	aliases := map[string]string{
		"zh-cn":   "zh",
		"zh-sg":   "zh",
		"zh-hans": "zh",
		"zh-tw":   "zh",
		"zh-hk":   "zh",
		"zh-hant": "zh",
		"pt-br":   "pt",
		"pt-pt":   "pt",
	}

	langs := strings.Split(langHeader, ",")
	for _, raw := range langs {
		code := strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
		code = strings.ToLower(strings.ReplaceAll(code, "_", "-"))

		base := code
		if i := strings.Index(code, "-"); i != -1 {
			base = code[:i]
		}

		if a, ok := aliases[code]; ok {
			base = a
		} else if a, ok := aliases[base]; ok {
			base = a
		}

		if _, ok := supported[base]; ok {
			return base
		}
	}

	return "en"
}

// =====================
// WEB — scene pages
// =====================

func defaultParams() scene.Params {
	return scene.Params{
		Ax:         *defaultAx,
		Ay:         *defaultAy,
		Mode:       *defaultMode,
		K:          *defaultK,
		Density:    *defaultDensity,
		Resolution: *defaultResolution,
	}.Clamp()
}

// renderScenePage renders the interactive page. initial seeds the
// sliders; sharedCode is non-empty when serving a stored share so the
// page can show its permalink.
func renderScenePage(w http.ResponseWriter, r *http.Request, initial scene.Params, sharedCode string) {
	lang := getPreferredLanguage(r)

	tmpl := template.Must(template.New("scene.html").Funcs(template.FuncMap{
		"translate": func(key string) string {
			if val, ok := translations[lang][key]; ok {
				return val
			}
			return translations["en"][key]
		},
		"toJSON": func(data interface{}) (string, error) {
			bytes, err := json.Marshal(data)
			return string(bytes), err
		},
	}).ParseFS(content, "public_html/scene.html"))

	if CompileVersion == "dev" {
		CompileVersion = "latest"
	}

	data := struct {
		Version      string
		Translations map[string]map[string]string
		Lang         string
		Initial      scene.Params
		SharedCode   string
	}{
		Version:      CompileVersion,
		Translations: translations,
		Lang:         lang,
		Initial:      initial,
		SharedCode:   sharedCode,
	}

	// Render into a buffer so a template error never double-writes headers.
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("Error executing template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		if isClientDisconnect(err) {
			log.Printf("client disconnected while writing response")
		} else {
			log.Printf("Error writing response: %v", err)
		}
	}
}

func sceneHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	renderScenePage(w, r, defaultParams(), "")
}

// sharedSceneHandler serves /s/<code>: the same page seeded with the
// stored parameters so the link reproduces the exact scene.
func sharedSceneHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/s/")
	row, err := db.SceneByCode(r.Context(), code)
	if err != nil {
		log.Printf("scene lookup %q: %v", code, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if row == nil {
		http.NotFound(w, r)
		return
	}

	var p scene.Params
	if err := json.Unmarshal([]byte(row.Params), &p); err != nil {
		log.Printf("stored params %q: %v", code, err)
		http.NotFound(w, r)
		return
	}
	renderScenePage(w, r, p.Clamp(), code)
}

// qrHandler serves the QR share card for a stored scene.
func qrHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	row, err := db.SceneByCode(r.Context(), code)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if row == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	url := baseURL(r) + "/s/" + row.Code
	if err := qrshare.EncodePNG(w, url, qrshare.Options{}); err != nil && !isClientDisconnect(err) {
		log.Printf("qr render %q: %v", code, err)
	}
}

// posterHandler computes the scene and streams the poster PNG. Poster
// rendering is the most expensive request we serve, so it goes through
// the heavy limiter lane and the buffered job log.
func posterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permit, err := limiter.Acquire(ctx, api.ClientIP(r), api.RequestHeavy)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	p := api.ParamsFromQuery(r).Clamp()
	jobID := fmt.Sprintf("%d", time.Now().UnixNano()%1e6)
	logger.Begin(jobID)
	logger.Append(jobID, fmt.Sprintf("[%-6s][Poster] key=%s", jobID, p.Key()))

	res, err := scene.Compute(p)
	if err != nil {
		logger.FlushError(jobID, err)
		http.Error(w, "scene compute error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := render.Poster(w, res, render.Options{}); err != nil {
		if isClientDisconnect(err) {
			logger.Success(jobID, "client left during poster write")
			return
		}
		logger.FlushError(jobID, err)
		return
	}
	logger.Success(jobID, fmt.Sprintf("poster %d circles overlap %.4f in %dms", res.CircleCount, res.OverlapFraction, res.ElapsedMS))
}

// =====================
// SSE endpoints
// =====================

// streamHandler feeds the live share sidebar: replay of recent shares
// first, then every new one as it is published, with comment pings so
// idle proxies keep the connection open.
func streamHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	for _, e := range stream.Recent() {
		b, _ := json.Marshal(e)
		fmt.Fprintf(w, "event: scene\ndata: %s\n\n", b)
	}
	flusher.Flush()

	events := stream.Subscribe(ctx, 16)
	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			b, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: scene\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}

// streamSceneHandler computes a scene progressively over SSE: first a
// meta frame with the circles, bounds and mesh axes, then one frame per
// raster row, then a done frame with the overlap fraction. The browser
// paints rows as they arrive instead of waiting for the full mask.
func streamSceneHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	permit, err := limiter.Acquire(ctx, api.ClientIP(r), api.RequestHeavy)
	if err != nil {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer permit.Release()

	p := api.ParamsFromQuery(r).Clamp()
	anchor := p.Anchor()
	circles := apollonius.Generate(anchor, p.Grid(), p.Rule())
	bounds := raster.ComputeBounds(anchor, circles)
	xs, ys := raster.MeshAxes(bounds, p.Resolution)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	meta := struct {
		Params  scene.Params        `json:"params"`
		Circles []apollonius.Circle `json:"circles"`
		Bounds  raster.Bounds       `json:"bounds"`
		Xs      []float64           `json:"xs"`
		Ys      []float64           `json:"ys"`
	}{Params: p, Circles: circles, Bounds: bounds, Xs: xs, Ys: ys}
	mb, _ := json.Marshal(meta)
	fmt.Fprintf(w, "event: meta\ndata: %s\n\n", mb)
	flusher.Flush()

	// With no admissible circles there is nothing to paint; skip the
	// rows and report an empty overlap right away.
	inside := 0
	total := 0
	if len(circles) > 0 {
		rows := raster.RasterizeRows(ctx, bounds, p.Resolution, circles)
		for row := range rows {
			for _, cell := range row.Cells {
				if cell {
					inside++
				}
				total++
			}
			b, _ := json.Marshal(row)
			fmt.Fprintf(w, "event: row\ndata: %s\n\n", b)
			flusher.Flush()
		}
		if ctx.Err() != nil {
			return
		}
	}

	fraction := 0.0
	if total > 0 {
		fraction = float64(inside) / float64(total)
	}
	done := struct {
		CircleCount     int     `json:"circleCount"`
		OverlapFraction float64 `json:"overlapFraction"`
		NoCircles       bool    `json:"noCircles"`
	}{CircleCount: len(circles), OverlapFraction: fraction, NoCircles: len(circles) == 0}
	payload, _ := json.Marshal(done)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func main() {
	// 1. Flags and version.
	flag.Parse()
	loadTranslations(content, "public_html/translations.json")

	if *version {
		fmt.Printf("apollonius-overlap-map version %s\n", CompileVersion)
		return
	}

	// 2. Privilege warning for :80 / :443.
	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	// 3. Database.
	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	var err error
	db, err = database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	if err = db.InitSchema(dbCfg); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	// 4. Shared services: live feed, cache, rate limiter, API.
	stream = scenestream.NewBus(12, 64)
	limiter = api.NewRateLimiter(time.Second)
	var cache *api.ResponseCache
	if *cacheTTL > 0 {
		cache = api.NewResponseCache(*cacheTTL)
	}
	apiHandler := api.NewHandler(db, cache, limiter, stream, log.Printf)

	// 5. Routes and static assets.
	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}

	http.Handle("/static/", http.StripPrefix("/static/",
		http.FileServer(http.FS(staticFS))))
	http.HandleFunc("/", sceneHandler)
	http.HandleFunc("/s/", sharedSceneHandler)
	http.HandleFunc("/qr", qrHandler)
	http.HandleFunc("/poster.png", posterHandler)
	http.HandleFunc("/stream", streamHandler)
	http.HandleFunc("/stream_scene", streamSceneHandler)
	apiHandler.Register(http.DefaultServeMux)

	rootHandler := withServerHeader(http.DefaultServeMux)

	// 6. HTTP/HTTPS servers.
	if *domain != "" {
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := http.ListenAndServe(addr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	// Background index build without blocking startup.
	ctxIdx, cancelIdx := context.WithCancel(context.Background())
	defer cancelIdx()
	log.Printf("⏳ background index build scheduled (engine=%s). Listeners are up; shares may be slower until indexes are ready.", dbCfg.DBType)
	db.EnsureIndexesAsync(ctxIdx, dbCfg, func(format string, args ...any) {
		log.Printf(format, args...)
	})

	// 7. Keep the main goroutine alive.
	select {}
}
