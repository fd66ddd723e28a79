package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"emberhost.ai/internal/config"
	"emberhost.ai/internal/manifest"
	persistlog "emberhost.ai/internal/persistence/log"
	"emberhost.ai/internal/resolve"
	"emberhost.ai/internal/sandbox"
	"emberhost.ai/internal/transport/ws"
)

type hostDeps struct {
	Config        config.Config
	Chain         resolve.ChainReader
	Fetcher       resolve.Fetcher
	Preview       *sandbox.Sandbox
	ResolutionLog resolutionSink
	Logger        *log.Logger
}

// host owns the admission pipeline: resolve a token reference, validate
// and preview-render its manifest, then expose the admitted widgets to
// the session transport.
type host struct {
	cfg         config.Config
	resolver    *resolve.Resolver
	preview     *sandbox.Sandbox
	resolutions resolutionSink
	log         *log.Logger

	// Sessions is wired after construction; the ws server needs the
	// host's directory first.
	Sessions *ws.Server

	mu      sync.RWMutex
	widgets map[string]manifest.Widget
}

func newHost(deps hostDeps) *host {
	h := &host{
		cfg:         deps.Config,
		preview:     deps.Preview,
		resolutions: deps.ResolutionLog,
		log:         deps.Logger,
		widgets:     map[string]manifest.Widget{},
	}
	if deps.Chain != nil {
		h.resolver = resolve.New(deps.Chain, deps.Fetcher, deps.Logger)
	}
	return h
}

// Directory exposes the admitted widgets to the ws transport.
func (h *host) Directory() ws.WidgetDirectory { return h }

func (h *host) Widget(id string) (manifest.Widget, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w, found := h.widgets[id]
	return w, found
}

func (h *host) admit(widgets []manifest.Widget) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range widgets {
		h.widgets[w.ID] = w
	}
}

type resolveRequest struct {
	Registry string `json:"registry,omitempty"`
	TokenID  string `json:"token_id"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type resolveResponse struct {
	OK          bool       `json:"ok"`
	Error       *errorBody `json:"error,omitempty"`
	CardURI     string     `json:"card_uri,omitempty"`
	ManifestURI string     `json:"manifest_uri,omitempty"`
	WidgetIDs   []string   `json:"widget_ids,omitempty"`
}

// HandleResolve walks the pointer chain for a token reference and, when
// the manifest passes the preview checks, admits its widgets.
func (h *host) HandleResolve(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.resolver == nil {
		writeJSONStatus(rw, http.StatusServiceUnavailable, resolveResponse{
			OK:    false,
			Error: &errorBody{Code: "resolver_disabled", Message: "no chain rpc endpoint configured"},
		})
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TokenID) == "" {
		writeJSONStatus(rw, http.StatusBadRequest, resolveResponse{
			OK:    false,
			Error: &errorBody{Code: "bad_request", Message: "token_id required"},
		})
		return
	}
	registry := strings.TrimSpace(req.Registry)
	if registry == "" {
		registry = h.cfg.Chain.Registry
	}

	res, err := h.resolver.Resolve(r.Context(), registry, req.TokenID)
	if err != nil {
		code := classifyResolveError(err)
		h.recordResolution(persistlog.ResolutionEntry{
			Registry: registry,
			TokenID:  req.TokenID,
			Outcome:  code,
			Detail:   err.Error(),
		})
		writeJSONStatus(rw, http.StatusBadGateway, resolveResponse{
			OK:    false,
			Error: &errorBody{Code: code, Message: err.Error()},
		})
		return
	}

	rendered := h.preview.Render(res.Manifest)
	if rendered.Fallback {
		h.recordResolution(persistlog.ResolutionEntry{
			Registry:    registry,
			TokenID:     req.TokenID,
			CardURI:     res.CardURI,
			ManifestURI: res.ManifestURI,
			Outcome:     "manifest_invalid",
			Detail:      rendered.Reason,
		})
		writeJSONStatus(rw, http.StatusUnprocessableEntity, resolveResponse{
			OK:          false,
			Error:       &errorBody{Code: "manifest_invalid", Message: rendered.Reason},
			CardURI:     res.CardURI,
			ManifestURI: res.ManifestURI,
		})
		return
	}

	m, err := manifest.Validate(res.Manifest)
	if err != nil {
		// Unreachable after a successful preview render; kept as a guard.
		writeJSONStatus(rw, http.StatusUnprocessableEntity, resolveResponse{
			OK:    false,
			Error: &errorBody{Code: "manifest_invalid", Message: err.Error()},
		})
		return
	}
	h.admit(m.Widgets)

	ids := make([]string, 0, len(m.Widgets))
	for _, w := range m.Widgets {
		ids = append(ids, w.ID)
	}
	h.recordResolution(persistlog.ResolutionEntry{
		Registry:    registry,
		TokenID:     req.TokenID,
		CardURI:     res.CardURI,
		ManifestURI: res.ManifestURI,
		Outcome:     "ok",
	})
	writeJSONStatus(rw, http.StatusOK, resolveResponse{
		OK:          true,
		CardURI:     res.CardURI,
		ManifestURI: res.ManifestURI,
		WidgetIDs:   ids,
	})
}

func classifyResolveError(err error) string {
	var chainErr *resolve.ChainReadError
	var cardErr *resolve.InvalidAgentCardError
	switch {
	case errors.Is(err, resolve.ErrManifestEndpointMissing):
		return "manifest_endpoint_missing"
	case errors.As(err, &chainErr):
		return "chain_read_error"
	case errors.As(err, &cardErr):
		return "invalid_agent_card"
	default:
		return "fetch_failed"
	}
}

func (h *host) recordResolution(e persistlog.ResolutionEntry) {
	if h.resolutions == nil {
		return
	}
	_ = h.resolutions.WriteResolution(e)
}

type previewFrame struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Digest string `json:"digest"`
}

type previewWidget struct {
	ID           string                `json:"id"`
	Surfaces     []string              `json:"surfaces"`
	Events       []string              `json:"events"`
	Placeholders []sandbox.Placeholder `json:"placeholders,omitempty"`
	Frame        *previewFrame         `json:"frame,omitempty"`
}

type previewResponse struct {
	OK      bool            `json:"ok"`
	Staged  bool            `json:"staged"`
	Widgets []previewWidget `json:"widgets,omitempty"`
}

// HandlePreview reports the currently staged preview. Frame pixels stay
// host-side; only their digest leaves the process.
func (h *host) HandlePreview(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cur, staged := h.preview.Current()
	resp := previewResponse{OK: true, Staged: staged}
	for _, w := range cur.Widgets {
		pw := previewWidget{
			ID:           w.ID,
			Surfaces:     w.Surfaces,
			Events:       w.Events,
			Placeholders: w.Placeholders,
		}
		if w.Frame != nil {
			pw.Frame = &previewFrame{Width: w.Frame.Width, Height: w.Frame.Height, Digest: w.Frame.Digest}
		}
		resp.Widgets = append(resp.Widgets, pw)
	}
	writeJSONStatus(rw, http.StatusOK, resp)
}

type resultResponse struct {
	OK    bool       `json:"ok"`
	Error *errorBody `json:"error,omitempty"`
}

type startRequest struct {
	UserInitiated bool `json:"user_initiated"`
}

type eventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandleSessions routes /v1/sessions/{id}[/start|/event|/surface].
func (h *host) HandleSessions(rw http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	op := ""
	if len(parts) == 2 {
		op = parts[1]
	}
	if sessionID == "" {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case op == "" && r.Method == http.MethodGet:
		live, found := h.Sessions.SessionLive(sessionID)
		if !found {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{
			"ok":         true,
			"session_id": sessionID,
			"live":       live,
			"live_badge": live,
		})

	case op == "start" && r.Method == http.MethodPost:
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResult(rw, false, "bad_request", "malformed body")
			return
		}
		res, found := h.Sessions.StartSession(sessionID, req.UserInitiated)
		if !found {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		writeResult(rw, res.OK, res.Code, res.Message)

	case op == "event" && r.Method == http.MethodPost:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
			writeResult(rw, false, "bad_request", "event type required")
			return
		}
		res, found := h.Sessions.DispatchEvent(sessionID, req.Type, req.Payload)
		if !found {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		writeResult(rw, res.OK, res.Code, res.Message)

	case op == "surface" && r.Method == http.MethodGet:
		surfaceID := r.URL.Query().Get("id")
		st, found := h.Sessions.Surface(sessionID, surfaceID)
		if !found {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{
			"ok":         true,
			"root":       st.RootID,
			"renderable": st.Renderable,
			"components": st.Components,
		})

	default:
		rw.WriteHeader(http.StatusNotFound)
	}
}

func writeResult(rw http.ResponseWriter, ok bool, code, message string) {
	resp := resultResponse{OK: ok}
	if !ok {
		resp.Error = &errorBody{Code: code, Message: message}
	}
	writeJSONStatus(rw, http.StatusOK, resp)
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
