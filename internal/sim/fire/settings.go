package fire

// Settings selects a preset and tunes the simulation. All float inputs are
// quantized to permille at construction so every later update runs on
// integer math only.
type Settings struct {
	PresetID  string  `json:"preset_id"`
	Size      float64 `json:"size"`      // 0..1, scales the cell grid
	Intensity float64 `json:"intensity"` // 0..1, base feed of the bottom row
	Heat      float64 `json:"heat"`      // 0..1, inverse of per-step cooling
	Seed      int64   `json:"seed"`
}

func DefaultSettings() Settings {
	return Settings{
		PresetID:  PresetClassic,
		Size:      0.5,
		Intensity: 0.6,
		Heat:      0.5,
		Seed:      1,
	}
}

// permille quantizes a 0..1 float to 0..1000. The explicit float64
// conversion before rounding keeps the compiler from fusing the multiply
// and add into platform-dependent FMA.
func permille(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	x := v * 1000
	return int(float64(x) + 0.5)
}
