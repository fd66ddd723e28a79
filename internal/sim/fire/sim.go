// Package fire is the reference widget: a seeded fire-propagation cellular
// automaton. Its whole purpose is to give the sandbox a falsifiable,
// hashable witness of reproducibility, so any source of non-determinism
// here is a correctness bug: no wall clock, no unseeded randomness, and
// integer-only cell math.
package fire

// Sim owns one simulation instance. One mutator at a time; Step must never
// be called concurrently on the same instance. Independently owned
// instances may run in parallel.
type Sim struct {
	settings Settings

	width  int
	height int
	cells  []uint8 // row-major, row 0 at the top

	rng   uint64
	steps uint64

	feed    int // bottom-row base intensity, 0..255
	cooling int // max per-cell decay per step

	palette [256][4]uint8
}

// New allocates the cell buffer sized by settings.Size, seeds the generator
// from settings.Seed and sets the initial intensities.
func New(settings Settings) *Sim {
	sizePM := permille(settings.Size)
	intensityPM := permille(settings.Intensity)
	heatPM := permille(settings.Heat)

	w := 32 + sizePM*96/1000  // 32..128
	h := 24 + sizePM*72/1000  // 24..96

	s := &Sim{
		settings: settings,
		width:    w,
		height:   h,
		cells:    make([]uint8, w*h),
		rng:      seedState(settings.Seed),
		feed:     128 + intensityPM*127/1000,
		cooling:  1 + (1000-heatPM)*6/1000,
		palette:  buildPalette(presetByID(settings.PresetID)),
	}
	s.feedBottomRow()
	return s
}

func (s *Sim) Width() int       { return s.width }
func (s *Sim) Height() int      { return s.height }
func (s *Sim) Steps() uint64    { return s.steps }
func (s *Sim) Settings() Settings { return s.settings }

// seedState whitens the user seed with a splitmix64 round so small seeds
// do not start the generator in a low-entropy state. Seed 0 is remapped to
// a fixed constant because a zero xorshift state never leaves zero.
func seedState(seed int64) uint64 {
	z := uint64(seed)
	if z == 0 {
		z = 0x9e3779b97f4a7c15
	}
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// nextRand is xorshift64*. All randomness in the simulation flows through
// here, in a fixed call order.
func (s *Sim) nextRand() uint64 {
	x := s.rng
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	s.rng = x
	return x * 0x2545f4914f6cdd1d
}

// Step applies one discrete update of the propagation rule: every cell
// above the bottom row pulls intensity from the row below with a random
// horizontal wobble and random cooling, then the bottom row is re-fed.
func (s *Sim) Step() {
	w, h := s.width, s.height
	for y := 1; y < h; y++ {
		for x := 0; x < w; x++ {
			r := s.nextRand()
			wobble := int(r&3) - 1 // -1, 0, 1, 2
			srcX := x + wobble
			if srcX < 0 {
				srcX = 0
			}
			if srcX >= w {
				srcX = w - 1
			}
			decay := int((r >> 2) % uint64(s.cooling+1))
			v := int(s.cells[y*w+srcX]) - decay
			if v < 0 {
				v = 0
			}
			s.cells[(y-1)*w+x] = uint8(v)
		}
	}
	s.feedBottomRow()
	s.steps++
}

func (s *Sim) feedBottomRow() {
	w, h := s.width, s.height
	base := s.feed
	for x := 0; x < w; x++ {
		flicker := int(s.nextRand() % 48)
		v := base - flicker
		if v < 0 {
			v = 0
		}
		s.cells[(h-1)*w+x] = uint8(v)
	}
}

// Render projects the cell buffer into a color-mapped RGBA framebuffer
// (width*height*4 bytes). It never perturbs the simulation state.
func (s *Sim) Render() []byte {
	out := make([]byte, len(s.cells)*4)
	for i, c := range s.cells {
		p := s.palette[c]
		out[i*4+0] = p[0]
		out[i*4+1] = p[1]
		out[i*4+2] = p[2]
		out[i*4+3] = p[3]
	}
	return out
}
