/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxInitBody = 4096
	qrSize      = 320
)

func corsHeaders(cfg *Config, w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	if !originAllowed(cfg, origin) {
		origin = cfg.allowedOrigins[0]
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Vary", "Origin")
}

func servePreflight(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		corsHeaders(cfg, w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return w.Write(append(data, '\n'))
}

// serveCreateRoom handles POST /api/room with a body of
// {name, mode, hintsOn, playing} and answers {room, moderatorId}.
func serveCreateRoom(cfg *Config, m *Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		corsHeaders(cfg, w, r)
		securityHeaders(cfg, w)

		var req InitRequest
		body := io.LimitReader(r.Body, maxInitBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			_, _ = writeJSON(w, http.StatusBadRequest, errorMessage(err))
			return
		}

		req.ModeratorName = strings.TrimSpace(req.ModeratorName)
		if req.ModeratorName == "" {
			_, _ = writeJSON(w, http.StatusBadRequest, errorMessage(errNameRequired))
			return
		}
		if req.Mode == "" {
			req.Mode = modeMixed
		}

		resp, err := m.Create(r.Context(), req)
		if err != nil {
			errorf("creating room: %v", err)
			_, _ = writeJSON(w, http.StatusInternalServerError, ErrorMessage{Type: "error", Message: "Could not create room"})
			return
		}

		written, err := writeJSON(w, http.StatusOK, resp)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Created room %s (%s) for %s in %s",
			resp.Room,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveRoomQR generates a PNG QR code pointing players at the room.
func serveRoomQR(cfg *Config, m *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")

		_, err := m.store.Load(r.Context(), code)
		switch {
		case errors.Is(err, errRoomNotFound):
			http.Error(w, errRoomNotFound.Error(), http.StatusNotFound)
			return
		case err != nil:
			errorf("loading room %s for qr: %v", code, err)
			http.Error(w, "Could not load room", http.StatusInternalServerError)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/?room=" + code

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

func registerRoomAPI(cfg *Config, m *Manager, mux *httprouter.Router, errs chan<- error) {
	mux.OPTIONS(cfg.prefix+"/api/room", servePreflight(cfg))
	mux.POST(cfg.prefix+"/api/room", serveCreateRoom(cfg, m, errs))
	mux.GET(cfg.prefix+"/api/room/:code/websocket", serveRoomSocket(cfg, m))
	mux.GET(cfg.prefix+"/api/room/:code/qr", serveRoomQR(cfg, m))
}
