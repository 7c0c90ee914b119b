package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"voxelrealm.ai/internal/sim/world"
)

type adminBackend interface {
	ForceLogout(ctx context.Context, username string) (bool, error)
	State(ctx context.Context) (world.StateSnapshot, error)
}

// registerAdmin mounts the local-only admin endpoints.
func registerAdmin(mux *http.ServeMux, b adminBackend) {
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		st, err := b.State(r.Context())
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, st)
	})
	mux.HandleFunc("/admin/v1/logout", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		username := strings.TrimSpace(r.URL.Query().Get("username"))
		if username == "" {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing username"})
			return
		}
		found, err := b.ForceLogout(r.Context(), username)
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if !found {
			writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "user not online"})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "username": username})
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
