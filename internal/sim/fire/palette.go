package fire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Preset ids.
const (
	PresetClassic = "CLASSIC"
	PresetEmber   = "EMBER"
	PresetInferno = "INFERNO"
)

// presetDef anchors a palette gradient: black -> glow -> flame -> tip.
type presetDef struct {
	ID    string   `json:"id"`
	Glow  [3]uint8 `json:"glow"`
	Flame [3]uint8 `json:"flame"`
	Tip   [3]uint8 `json:"tip"`
}

var presets = map[string]presetDef{
	PresetClassic: {ID: PresetClassic, Glow: [3]uint8{0x47, 0x0b, 0x00}, Flame: [3]uint8{0xdf, 0x4f, 0x07}, Tip: [3]uint8{0xff, 0xe7, 0x9f}},
	PresetEmber:   {ID: PresetEmber, Glow: [3]uint8{0x2b, 0x06, 0x06}, Flame: [3]uint8{0x9f, 0x2a, 0x00}, Tip: [3]uint8{0xff, 0x9a, 0x3c}},
	PresetInferno: {ID: PresetInferno, Glow: [3]uint8{0x1a, 0x00, 0x2e}, Flame: [3]uint8{0xc3, 0x1e, 0x5e}, Tip: [3]uint8{0xff, 0xf3, 0xd6}},
}

func presetByID(id string) presetDef {
	if p, ok := presets[id]; ok {
		return p
	}
	return presets[PresetClassic]
}

// buildPalette expands a preset to 256 RGBA entries with integer lerps.
func buildPalette(p presetDef) [256][4]uint8 {
	var pal [256][4]uint8
	lerp := func(a, b uint8, num, den int) uint8 {
		return uint8(int(a) + (int(b)-int(a))*num/den)
	}
	for i := 0; i < 256; i++ {
		var c [3]uint8
		switch {
		case i < 64:
			for k := 0; k < 3; k++ {
				c[k] = lerp(0, p.Glow[k], i, 63)
			}
		case i < 192:
			for k := 0; k < 3; k++ {
				c[k] = lerp(p.Glow[k], p.Flame[k], i-64, 127)
			}
		default:
			for k := 0; k < 3; k++ {
				c[k] = lerp(p.Flame[k], p.Tip[k], i-192, 63)
			}
		}
		pal[i] = [4]uint8{c[0], c[1], c[2], 0xff}
	}
	return pal
}

// PresetIDs returns the known preset ids, sorted.
func PresetIDs() []string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PresetsDigest is the sha256 of the canonical preset catalogue, echoed to
// clients so they can detect drift.
func PresetsDigest() string {
	defs := make([]presetDef, 0, len(presets))
	for _, id := range PresetIDs() {
		defs = append(defs, presets[id])
	}
	b, _ := json.Marshal(defs)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
