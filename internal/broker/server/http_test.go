package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdobrica/mcp-auth-broker/internal/broker/server"
)

func TestHealthServer_Endpoints(t *testing.T) {
	s := newServer(t, testConfig(), server.Options{Provider: okProvider()})
	hs := server.NewHealthServer("127.0.0.1:0", s)

	cases := []struct {
		path string
		want map[string]string
	}{
		{"/health", map[string]string{"status": "ok", "service": "mcp-auth-broker"}},
		{"/ready", map[string]string{"status": "ready", "environment": "test"}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status: got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type: got %q", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			for k, v := range tc.want {
				if body[k] != v {
					t.Errorf("%s: got %q, want %q", k, body[k], v)
				}
			}
		})
	}
}

func TestHealthServer_UnknownPath(t *testing.T) {
	s := newServer(t, testConfig(), server.Options{Provider: okProvider()})
	hs := server.NewHealthServer("127.0.0.1:0", s)

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}
