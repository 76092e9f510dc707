package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"raidlab/internal/combatlog"
	"raidlab/internal/mechanics"
	"raidlab/internal/sim"
	"raidlab/internal/store"
)

const (
	// DemoLogID addresses the built-in demo summary.
	DemoLogID = "demo"

	defaultMaxUploadBytes = 32 << 20
	defaultEnrichTimeout  = 20 * time.Second
)

// routerHandlers holds the dependencies shared by every route.
type routerHandlers struct {
	store      SummaryStore
	sessions   SessionManager
	extractor  MechanicsExtractor
	classifier mechanics.Classifier
	renderer   FrameRenderer
	hub        *LiveHub

	maxUpload     int64
	enrichTimeout time.Duration

	// The demo summary never expires, so its enrichment results live here
	// instead of in the store.
	demoMu sync.Mutex
	demo   store.Entry
}

func newRouterHandlers(cfg RouterConfig) *routerHandlers {
	h := &routerHandlers{
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		extractor:     cfg.Extractor,
		classifier:    cfg.Classifier,
		renderer:      cfg.Renderer,
		hub:           cfg.Hub,
		maxUpload:     cfg.MaxUploadBytes,
		enrichTimeout: cfg.EnrichTimeout,
		demo: store.Entry{
			ID:       DemoLogID,
			Summary:  combatlog.DemoSummary(),
			StoredAt: time.Now(),
		},
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUploadBytes
	}
	if h.enrichTimeout <= 0 {
		h.enrichTimeout = defaultEnrichTimeout
	}
	return h
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// Logs

func (h *routerHandlers) handleUploadLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	body, err := logBody(r)
	if err != nil {
		RecordParseFailure("bad_request")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	started := time.Now()
	summary, err := combatlog.BuildFromReader(body)
	if err != nil {
		reason, code := parseFailure(err)
		RecordParseFailure(reason)
		if code == http.StatusInternalServerError {
			log.Printf("❌ Log upload failed: %v", err)
		}
		writeError(w, reason, code)
		return
	}
	RecordParse(summary, time.Since(started))

	id := h.store.Put(summary)
	log.Printf("📥 Stored log %s: %q, %d spells, %d lines (%d skipped)",
		id, summary.EncounterName, len(summary.Spells), summary.RawLineCount, summary.SkippedLineCount)

	writeJSONCode(w, http.StatusCreated, map[string]interface{}{
		"id":      id,
		"summary": summary,
	})
}

// logBody returns the raw log from either a multipart "log" field or the
// request body itself.
func logBody(r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, nil
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("invalid multipart body")
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing log field")
		}
		if err != nil {
			return nil, errors.New("invalid multipart body")
		}
		if part.FormName() == "log" {
			return part, nil
		}
	}
}

func parseFailure(err error) (reason string, code int) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return "too_large", http.StatusRequestEntityTooLarge
	case errors.Is(err, combatlog.ErrEmptyInput):
		return "empty_input", http.StatusBadRequest
	case errors.Is(err, combatlog.ErrNoValidEvents):
		return "no_valid_events", http.StatusUnprocessableEntity
	default:
		return "read_failed", http.StatusInternalServerError
	}
}

func (h *routerHandlers) handleGetLog(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"id":       entry.ID,
		"storedAt": entry.StoredAt,
		"summary":  entry.Summary,
	})
}

func (h *routerHandlers) handleGetMechanics(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	list, source := h.mechanicsFor(r.Context(), entry)
	writeJSON(w, map[string]interface{}{
		"logId":     entry.ID,
		"source":    source,
		"mechanics": list,
	})
}

func (h *routerHandlers) handleGetClassifications(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	result := entry.Classifications
	if result == nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.enrichTimeout)
		defer cancel()
		result = mechanics.ClassifyWithFallback(ctx, h.classifier, entry.Summary.HostileSpells())
		h.saveClassifications(entry.ID, result)
	}
	writeJSON(w, map[string]interface{}{
		"logId":           entry.ID,
		"classifications": result,
	})
}

// entry resolves the {id} URL param to a stored summary, writing a 404 when
// it is unknown or expired.
func (h *routerHandlers) entry(w http.ResponseWriter, r *http.Request) (store.Entry, bool) {
	entry, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "log_not_found", http.StatusNotFound)
	}
	return entry, ok
}

func (h *routerHandlers) lookup(id string) (store.Entry, bool) {
	if id == DemoLogID {
		h.demoMu.Lock()
		defer h.demoMu.Unlock()
		return h.demo, true
	}
	return h.store.Get(id)
}

// mechanicsFor returns cached mechanics or runs the extractor once.
func (h *routerHandlers) mechanicsFor(ctx context.Context, entry store.Entry) ([]mechanics.Mechanic, string) {
	if len(entry.Mechanics) > 0 {
		return entry.Mechanics, entry.MechanicsSource
	}
	ctx, cancel := context.WithTimeout(ctx, h.enrichTimeout)
	defer cancel()
	list, source := h.extractor.ExtractWithSource(ctx, entry.Summary)
	h.saveMechanics(entry.ID, list, source)
	return list, source
}

func (h *routerHandlers) saveMechanics(id string, list []mechanics.Mechanic, source string) {
	if id == DemoLogID {
		h.demoMu.Lock()
		h.demo.Mechanics = list
		h.demo.MechanicsSource = source
		h.demoMu.Unlock()
		return
	}
	h.store.SetMechanics(id, list, source)
}

func (h *routerHandlers) saveClassifications(id string, c map[string]mechanics.Classification) {
	if id == DemoLogID {
		h.demoMu.Lock()
		h.demo.Classifications = c
		h.demoMu.Unlock()
		return
	}
	h.store.SetClassifications(id, c)
}

// Sessions

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogID string `json:"logId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.LogID == "" {
		writeError(w, "logId is required", http.StatusBadRequest)
		return
	}

	entry, ok := h.lookup(req.LogID)
	if !ok {
		writeError(w, "log_not_found", http.StatusNotFound)
		return
	}
	list, _ := h.mechanicsFor(r.Context(), entry)

	encounter := strings.TrimSpace(entry.Summary.EncounterName)
	if encounter == "" {
		encounter = "Unknown Encounter"
	}
	sess, err := h.sessions.Create(entry.ID, encounter, list)
	if errors.Is(err, sim.ErrTooManySessions) {
		RecordConnectionRejected("session_limit")
		writeError(w, "Session limit reached", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	UpdateActiveSessions(h.sessions.Len())

	writeJSONCode(w, http.StatusCreated, sess.Snapshot())
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Snapshot())
}

func (h *routerHandlers) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !sess.Start() {
		writeError(w, "not_idle", http.StatusConflict)
		return
	}
	writeJSON(w, sess.Snapshot())
}

func (h *routerHandlers) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Restart()
	writeJSON(w, sess.Snapshot())
}

func (h *routerHandlers) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Stop()
	writeJSON(w, sess.Snapshot())
}

func (h *routerHandlers) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var in sim.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sess.SetInput(in)
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(id); err != nil {
		writeError(w, "session_not_found", http.StatusNotFound)
		return
	}
	if h.hub != nil {
		h.hub.CloseSession(id)
	}
	UpdateActiveSessions(h.sessions.Len())
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleSessionFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.renderer == nil {
		writeError(w, "rendering disabled", http.StatusNotImplemented)
		return
	}

	started := time.Now()
	var buf bytes.Buffer
	if err := h.renderer.EncodePNG(&buf, sess.Snapshot()); err != nil {
		log.Printf("❌ Frame render failed for %s: %v", sess.ID(), err)
		writeError(w, "render failed", http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(started))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, sess)
}

func (h *routerHandlers) session(w http.ResponseWriter, r *http.Request) (*sim.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "session_not_found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONCode(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
