package sandbox

import (
	"strings"

	"emberhost.ai/internal/manifest"
	"emberhost.ai/internal/sim/fire"
)

// previewSeed and previewSteps are fixed so every preview of the same
// widget produces the same frame digest.
const (
	previewSeed  = 42
	previewSteps = 120
)

// FirePreview renders the reference fire widget for preview surfaces. A
// widget qualifies when it declares at least one fire-namespaced event
// type; anything else gets no frame.
type FirePreview struct{}

func (FirePreview) PreviewFrame(w manifest.Widget) (Frame, bool) {
	if !isFireWidget(w) {
		return Frame{}, false
	}
	settings := fire.DefaultSettings()
	settings.Seed = previewSeed
	sim := fire.New(settings)
	for i := 0; i < previewSteps; i++ {
		sim.Step()
	}
	pixels := sim.Render()
	return Frame{
		Width:  sim.Width(),
		Height: sim.Height(),
		Pixels: pixels,
		Digest: fire.FrameDigest(pixels),
	}, true
}

func isFireWidget(w manifest.Widget) bool {
	for _, e := range w.Events {
		if strings.HasPrefix(e.Type, "fire.") {
			return true
		}
	}
	return false
}
