package manifest

import (
	"encoding/json"
	"fmt"
)

// ValidationError describes one structural or policy failure in a candidate
// manifest. Validation is a routine outcome of untrusted input, so callers
// branch on the error rather than treating it as exceptional.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate parses and structurally validates a candidate manifest document.
// It never mutates its input and performs no I/O.
func Validate(raw []byte) (Descriptor, error) {
	obj, ok := RawObject(raw)
	if !ok {
		return Descriptor{}, invalid("", "not a JSON object")
	}
	if _, ok := obj["type"]; !ok {
		return Descriptor{}, invalid("type", "missing")
	}
	if _, ok := obj["manifestVersion"]; !ok {
		return Descriptor{}, invalid("manifestVersion", "missing")
	}
	if _, ok := obj["widgets"]; !ok {
		return Descriptor{}, invalid("widgets", "missing")
	}

	var m Descriptor
	if err := json.Unmarshal(raw, &m); err != nil {
		return Descriptor{}, invalid("", "malformed document")
	}
	if m.Type == "" {
		return Descriptor{}, invalid("type", "empty")
	}
	if m.ManifestVersion == "" {
		return Descriptor{}, invalid("manifestVersion", "empty")
	}
	for i := range m.Widgets {
		w := &m.Widgets[i]
		if w.ID == "" {
			return Descriptor{}, invalid(fmt.Sprintf("widgets[%d].id", i), "empty")
		}
		if w.SurfaceContract.Mode == "" {
			return Descriptor{}, invalid(fmt.Sprintf("widgets[%d].surfaceContract.mode", i), "empty")
		}
		for j, sid := range w.SurfaceContract.SurfaceIDs {
			if sid == "" {
				return Descriptor{}, invalid(fmt.Sprintf("widgets[%d].surfaceContract.surfaceIds[%d]", i, j), "empty")
			}
		}
		for j, e := range w.Events {
			if e.Type == "" {
				return Descriptor{}, invalid(fmt.Sprintf("widgets[%d].events[%d].type", i, j), "empty")
			}
		}
	}
	return m, nil
}

// CheckPreviewTarget enforces the preview scoping policy: a bundle that
// declares a target surface must target exactly SurfacePreview before the
// preview sandbox will render it. This stops a preview-only bundle from
// being promoted to control a live surface it was never authorized for.
func CheckPreviewTarget(m *Descriptor) error {
	if m.TargetSurface != "" && m.TargetSurface != SurfacePreview {
		return invalid("targetSurface", fmt.Sprintf("expected %q, got %q", SurfacePreview, m.TargetSurface))
	}
	return nil
}
