// Package sandbox renders validated manifests in a preview mode with zero
// network egress. The sandbox holds no fetch capability at all, so remote
// resources cannot be fetched by construction; anything URL-shaped in the
// payload is surfaced as an inert placeholder instead.
package sandbox

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"emberhost.ai/internal/manifest"
)

// FrameRenderer produces a preview frame for the reference widget. The
// fire renderer implements it; other widgets get no frame.
type FrameRenderer interface {
	PreviewFrame(w manifest.Widget) (Frame, bool)
}

type Frame struct {
	Width  int
	Height int
	Pixels []byte
	Digest string
}

// Placeholder marks a remote-resource-shaped property that was rendered
// inert rather than fetched.
type Placeholder struct {
	Path string
	URI  string
}

type WidgetPreview struct {
	ID           string
	Surfaces     []string
	Events       []string
	Placeholders []Placeholder
	Frame        *Frame
}

// RenderResult is either a full preview or the fallback state; never a
// partially rendered surface.
type RenderResult struct {
	Fallback bool
	Reason   string
	Widgets  []WidgetPreview
}

type Sandbox struct {
	frames FrameRenderer
	log    *log.Logger

	// mu guards the staged state; Render and Current run on concurrent
	// handler goroutines.
	mu          sync.Mutex
	current     *RenderResult
	blockedNavs int
}

func New(frames FrameRenderer, logger *log.Logger) *Sandbox {
	return &Sandbox{frames: frames, log: logger}
}

// Render validates and renders a candidate manifest. On any validation or
// preview-target failure the sandbox presents the fallback state and drops
// all previously staged UI state.
func (s *Sandbox) Render(raw []byte) RenderResult {
	m, err := manifest.Validate(raw)
	if err != nil {
		return s.fail(fmt.Sprintf("manifest rejected: %v", err))
	}
	if err := manifest.CheckPreviewTarget(&m); err != nil {
		return s.fail(fmt.Sprintf("bundle rejected: %v", err))
	}

	remote := scanRemoteRefs(raw)

	out := RenderResult{Widgets: make([]WidgetPreview, 0, len(m.Widgets))}
	for i := range m.Widgets {
		w := m.Widgets[i]
		wp := WidgetPreview{
			ID:           w.ID,
			Surfaces:     append([]string(nil), w.SurfaceContract.SurfaceIDs...),
			Events:       w.EventTypes(),
			Placeholders: remote[w.ID],
		}
		if s.frames != nil {
			if f, found := s.frames.PreviewFrame(w); found {
				wp.Frame = &f
			}
		}
		out.Widgets = append(out.Widgets, wp)
	}
	s.mu.Lock()
	s.current = &out
	s.mu.Unlock()
	return out
}

func (s *Sandbox) fail(reason string) RenderResult {
	// Prior staged state must not stay reachable after a rejection.
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("preview fallback: %s", reason)
	}
	return RenderResult{Fallback: true, Reason: reason}
}

// Current returns the last successful render, if one is staged.
func (s *Sandbox) Current() (RenderResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RenderResult{}, false
	}
	return *s.current, true
}

// RequestNavigation is the hook rendered content calls to open an external
// target. Preview content has no navigation capability: every attempt is
// intercepted and dropped.
func (s *Sandbox) RequestNavigation(target string) bool {
	s.mu.Lock()
	s.blockedNavs++
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("preview blocked navigation to %s", target)
	}
	return false
}

func (s *Sandbox) BlockedNavigations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedNavs
}

var remoteSchemes = []string{"https://", "http://", "ipfs://", "ws://", "wss://"}

func looksRemote(v string) bool {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(v, scheme) {
			return true
		}
	}
	return false
}

// scanRemoteRefs walks the raw widget entries and collects URL-shaped
// string properties, keyed by widget id. The scan is the only thing that
// ever happens to these values.
func scanRemoteRefs(raw []byte) map[string][]Placeholder {
	var doc struct {
		Widgets []map[string]any `json:"widgets"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	out := map[string][]Placeholder{}
	for i, w := range doc.Widgets {
		id, _ := w["id"].(string)
		if id == "" {
			id = fmt.Sprintf("widgets[%d]", i)
		}
		walkStrings(w, "", func(path, v string) {
			if looksRemote(v) {
				out[id] = append(out[id], Placeholder{Path: path, URI: v})
			}
		})
	}
	return out
}

func walkStrings(v any, path string, visit func(path, v string)) {
	switch t := v.(type) {
	case string:
		visit(path, t)
	case map[string]any:
		for k, child := range t {
			p := k
			if path != "" {
				p = path + "." + k
			}
			walkStrings(child, p, visit)
		}
	case []any:
		for i, child := range t {
			walkStrings(child, fmt.Sprintf("%s[%d]", path, i), visit)
		}
	}
}
