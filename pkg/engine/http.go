package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// 1x1 transparent GIF served by the open-tracking beacon.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Routes mounts the engine's inbound HTTP surface: signed provider
// callbacks plus open and click tracking endpoints.
func (e *Engine) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/callbacks/{channel}", e.handleCallback)
	r.Get("/track/open/{id}", e.handleTrackOpen)
	r.Get("/track/click/{id}", e.handleTrackClick)
	return r
}

func (e *Engine) handleCallback(w http.ResponseWriter, r *http.Request) {
	ch := notification.Channel(chi.URLParam(r, "channel"))
	if !ch.Valid() {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := verifyCallback(
		e.callbackSecret,
		body,
		r.Header.Get(HeaderSignature),
		r.Header.Get(HeaderTimestamp),
		e.callbackMaxAge,
		e.now(),
	); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	switch err := e.HandleCallback(r.Context(), ch, cb); {
	case errors.Is(err, ErrUnknownExternalID):
		writeError(w, http.StatusNotFound, "unknown external id")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "callback processing failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleTrackOpen serves the tracking pixel. It always answers 200 with the
// GIF, even for unknown IDs, so mail clients render nothing unusual.
func (e *Engine) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	if id, err := uuid.Parse(chi.URLParam(r, "id")); err == nil {
		e.TrackOpen(r.Context(), id)
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(trackingPixel)
}

// handleTrackClick records the click and redirects to the target URL from
// the "url" query parameter.
func (e *Engine) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if id, err := uuid.Parse(chi.URLParam(r, "id")); err == nil {
		e.TrackClick(r.Context(), id, target)
	}
	if target == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
