// Package manifest holds the trust artifacts of the widget host: the
// manifest document a widget ships, the AgentCard that points at it, and
// the pure structural checks that gate both. Nothing here performs I/O.
package manifest

import "encoding/json"

// SurfacePreview is the only target surface a preview-scoped bundle may
// declare. Bundles targeting anything else never reach a live surface.
const SurfacePreview = "preview"

// Descriptor is the root trust artifact. Every field is required; unknown
// top-level shapes are rejected by Validate rather than coerced.
type Descriptor struct {
	Type            string   `json:"type"`
	ManifestVersion string   `json:"manifestVersion"`
	TargetSurface   string   `json:"targetSurface,omitempty"`
	Widgets         []Widget `json:"widgets"`
}

// Widget declares the complete capability surface one widget may use
// during a live session.
type Widget struct {
	ID              string          `json:"id"`
	SurfaceContract SurfaceContract `json:"surfaceContract"`
	Events          []Event         `json:"events"`
}

type SurfaceContract struct {
	Mode       string   `json:"mode"` // "single", "multi", future variants
	SurfaceIDs []string `json:"surfaceIds"`
}

type Event struct {
	Type string `json:"type"`
}

// SurfaceAllowed reports whether the widget may address the surface.
func (w *Widget) SurfaceAllowed(surfaceID string) bool {
	for _, id := range w.SurfaceContract.SurfaceIDs {
		if id == surfaceID {
			return true
		}
	}
	return false
}

// EventAllowed reports whether the widget may dispatch or receive the
// event type.
func (w *Widget) EventAllowed(eventType string) bool {
	for _, e := range w.Events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// WidgetByID returns the declared widget with the given id, or nil.
func (m *Descriptor) WidgetByID(id string) *Widget {
	for i := range m.Widgets {
		if m.Widgets[i].ID == id {
			return &m.Widgets[i]
		}
	}
	return nil
}

// EventTypes returns the widget's declared event types in declaration order.
func (w *Widget) EventTypes() []string {
	out := make([]string, 0, len(w.Events))
	for _, e := range w.Events {
		out = append(out, e.Type)
	}
	return out
}

// RawObject reports whether b parses as a JSON object. Used to separate
// "not a document at all" from "document missing fields".
func RawObject(b []byte) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, false
	}
	return obj, true
}
