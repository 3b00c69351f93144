package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tripplanner/internal/cache"
	"tripplanner/internal/config"
	"tripplanner/internal/route"
	"tripplanner/internal/trip"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}

	trips, err := cache.NewMemoryCache[trip.Trip](10)
	require.NoError(t, err)
	locations, err := cache.NewMemoryCache[route.Location](10)
	require.NoError(t, err)

	model := trip.NewModel(trip.NewMemoryStore(), trips, locations, zap.NewNop())
	h := New(cfg, zap.NewNop(), model)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(h.CORSMiddleware(h.RequestLoggingMiddleware(mux)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createLocation(t *testing.T, base, name string, lat, lon float64) route.Location {
	t.Helper()
	var loc route.Location
	resp := doJSON(t, http.MethodPost, base+"/api/locations",
		route.Location{Name: name, Latitude: lat, Longitude: lon}, &loc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return loc
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestTripLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	var created trip.Trip
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/trips", map[string]string{"destination": "Lisbon"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Lisbon", created.Destination)
	assert.Empty(t, created.Locations)

	tripURL := fmt.Sprintf("%s/api/trips/%d", srv.URL, created.ID)

	var updated trip.Trip
	resp = doJSON(t, http.MethodPut, tripURL, map[string]string{"destination": "Porto"}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Porto", updated.Destination)

	var list []trip.Trip
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/trips", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	assert.Equal(t, "Porto", list[0].Destination)

	resp = doJSON(t, http.MethodDelete, tripURL, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, tripURL, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTripLocationsAndOptimize(t *testing.T) {
	srv := newTestServer(t, nil)

	a := createLocation(t, srv.URL, "a", 1, 1)
	b := createLocation(t, srv.URL, "b", 0, 0)
	c := createLocation(t, srv.URL, "c", 1, 0)
	d := createLocation(t, srv.URL, "d", 0, 1)

	var tr trip.Trip
	doJSON(t, http.MethodPost, srv.URL+"/api/trips", map[string]string{"destination": "Square"}, &tr)
	tripURL := fmt.Sprintf("%s/api/trips/%d", srv.URL, tr.ID)

	resp := doJSON(t, http.MethodPost, tripURL+"/optimize", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	for _, loc := range []route.Location{a, b, c, d} {
		resp := doJSON(t, http.MethodPost, tripURL+"/locations", map[string]int64{"location_id": loc.ID}, &tr)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Len(t, tr.Locations, 4)

	var optimized routeResponse
	resp = doJSON(t, http.MethodPost, tripURL+"/optimize", nil, &optimized)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []route.Location{a, c, b, d}, optimized.Route)
	assert.InDelta(t, 3.0, optimized.Distance, 1e-9)

	var got trip.Trip
	doJSON(t, http.MethodGet, tripURL, nil, &got)
	assert.Equal(t, optimized.Route, got.Locations)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/locations/%d", tripURL, c.ID), nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []route.Location{a, b, d}, got.Locations)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/locations/%d", tripURL, c.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, tripURL+"/locations", map[string]int64{"location_id": 999}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLocations(t *testing.T) {
	srv := newTestServer(t, nil)

	loc := createLocation(t, srv.URL, "Tower", 48.85, 2.29)
	assert.NotZero(t, loc.ID)

	var got route.Location
	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/locations/%d", srv.URL, loc.ID), nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, loc, got)

	var list []route.Location
	doJSON(t, http.MethodGet, srv.URL+"/api/locations", nil, &list)
	assert.Equal(t, []route.Location{loc}, list)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown location", http.MethodGet, "/api/locations/42", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/locations/abc", nil, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/api/locations", route.Location{Latitude: 1}, http.StatusBadRequest},
		{"latitude out of range", http.MethodPost, "/api/locations", route.Location{Name: "x", Latitude: 91}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/locations", "not an object", http.StatusBadRequest},
		{"empty destination", http.MethodPost, "/api/trips", map[string]string{"destination": " "}, http.StatusBadRequest},
		{"bad trip id", http.MethodGet, "/api/trips/zero", nil, http.StatusBadRequest},
		{"unknown trip route", http.MethodGet, "/api/trips/1/unknown", nil, http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/locations", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, tt.method, srv.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPath(t *testing.T) {
	srv := newTestServer(t, nil)

	a := createLocation(t, srv.URL, "a", 0, 0)
	b := createLocation(t, srv.URL, "b", 3, 4)

	var resp pathResponse
	r := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/path?from=%d&to=%d", srv.URL, a.ID, b.ID), nil, &resp)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.True(t, resp.Found)
	assert.Equal(t, []route.Location{a, b}, resp.Path)
	assert.InDelta(t, 5.0, resp.Distance, 1e-9)

	r = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/path?from=%d&to=77", srv.URL, a.ID), nil, &resp)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.False(t, resp.Found)
	assert.Empty(t, resp.Path)

	r = doJSON(t, http.MethodGet, srv.URL+"/api/path?from=1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestCacheStats(t *testing.T) {
	srv := newTestServer(t, nil)
	createLocation(t, srv.URL, "a", 0, 0)

	var stats map[string]cacheStatsResponse
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/cache/stats", nil, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Contains(t, stats, "trips")
	require.Contains(t, stats, "locations")
	assert.Equal(t, 0, stats["trips"].Size)
	assert.Equal(t, 1, stats["locations"].Size)
	assert.Equal(t, 10, stats["locations"].Capacity)
	assert.InDelta(t, 0.1, stats["locations"].Utilization, 1e-9)
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		origin  string
		want    string
	}{
		{name: "configured origin", allowed: "https://app.example.com", origin: "https://other.example.com", want: "https://app.example.com"},
		{name: "no origin header", want: "*"},
		{name: "foreign origin rejected", origin: "https://evil.example.com", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&config.Config{AllowedOrigin: tt.allowed}, zap.NewNop(), nil)
			handler := h.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusTeapot, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("preflight short-circuits", func(t *testing.T) {
		h := New(&config.Config{}, zap.NewNop(), nil)
		called := false
		handler := h.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/trips", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, called)
	})
}

func TestExtractIP(t *testing.T) {
	h := New(&config.Config{}, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", h.extractIP(req))

	req.Header.Set("X-Real-Ip", "192.168.1.9")
	assert.Equal(t, "192.168.1.9", h.extractIP(req))
}

func TestExtractIP_IPv6(t *testing.T) {
	h := New(&config.Config{}, zap.NewNop(), nil)

	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		want       string
	}{
		{name: "remote with port", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "loopback with port", remoteAddr: "[::1]:5555", want: "::1"},
		{name: "header without port", remoteAddr: "10.0.0.1:5555", realIP: "2001:db8::7", want: "2001:db8::7"},
		{name: "header with port", remoteAddr: "10.0.0.1:5555", realIP: "[2001:db8::7]:443", want: "2001:db8::7"},
		{name: "bracketed header", remoteAddr: "10.0.0.1:5555", realIP: "[fe80::2]", want: "fe80::2"},
		{name: "ipv4 header with port", remoteAddr: "[::1]:5555", realIP: "192.168.1.9:80", want: "192.168.1.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-Ip", tt.realIP)
			}
			assert.Equal(t, tt.want, h.extractIP(req))
		})
	}
}
