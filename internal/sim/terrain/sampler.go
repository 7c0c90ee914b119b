package terrain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"voxelrealm.ai/internal/sim/mathx"
)

const (
	Air    uint16 = 0
	Grass  uint16 = 1
	Dirt   uint16 = 2
	Stone  uint16 = 3
	Sand   uint16 = 4
	Snow   uint16 = 5
	Magma  uint16 = 6
	Clay   uint16 = 7
	Wood   uint16 = 8
	Planks uint16 = 9
	Glass  uint16 = 10
	Brick  uint16 = 11
	Leaves uint16 = 12

	// MaxBlockID is the highest id a client may place.
	MaxBlockID = Leaves
)

// subsurfaceDepth is how many voxels below the top use the sub-surface block.
const subsurfaceDepth = 3

var (
	octaveFreq   = [...]float64{1, 2.1, 4.3, 8.7}
	octaveWeight = [...]float64{1, 0.5, 0.25, 0.125}
)

// Column is the sampled surface at one (x, z).
type Column struct {
	TopY  int
	Biome string
	Void  bool
}

type Cell struct {
	X, Z  int
	TopY  int
	Biome string
}

func (c Cell) Key() string { return CellKey(c.X, c.Z) }

func CellKey(x, z int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(z)
}

func ParseCellKey(k string) (x, z int, err error) {
	a, b, ok := strings.Cut(k, ",")
	if !ok {
		return 0, 0, fmt.Errorf("bad cell key %q", k)
	}
	if x, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
		return 0, 0, fmt.Errorf("bad cell key %q", k)
	}
	if z, err = strconv.Atoi(strings.TrimSpace(b)); err != nil {
		return 0, 0, fmt.Errorf("bad cell key %q", k)
	}
	return x, z, nil
}

// Sampler is a pure function of (seed, config, cells). It is safe for concurrent use.
type Sampler struct {
	cfg   Config
	seed  int64
	cells map[string]string
}

func NewSampler(seed string, cfg Config, cells map[string]string) *Sampler {
	return &Sampler{
		cfg:   Normalize(cfg),
		seed:  int64(mathx.FNV32(seed)),
		cells: cells,
	}
}

// Sample is a convenience wrapper for one-off lookups.
func Sample(seed string, cfg Config, x, z int) Column {
	return NewSampler(seed, cfg, nil).Sample(x, z)
}

func (s *Sampler) Config() Config { return s.cfg }
func (s *Sampler) Height() int    { return s.cfg.WorldHeight }

func (s *Sampler) Sample(x, z int) Column {
	biome, ok := s.biomeAt(x, z)
	if !ok {
		return Column{TopY: -1, Void: true}
	}
	n := s.noise(float64(x)*s.cfg.NoiseScale, float64(z)*s.cfg.NoiseScale)
	rough := 1.0
	if r, ok := s.cfg.BiomeRoughness[biome]; ok {
		rough = r
	}
	h := float64(s.cfg.SurfaceHeight) + s.cfg.BiomeBias[biome] + n*s.cfg.NoiseAmplitude*rough
	top := mathx.ClampInt(int(math.Round(h)), 1, s.cfg.WorldHeight-2)
	return Column{TopY: top, Biome: biome}
}

func (s *Sampler) BaseBlock(x, y, z int) uint16 {
	if y < 0 || y >= s.cfg.WorldHeight {
		return Air
	}
	col := s.Sample(x, z)
	if col.Void || y > col.TopY {
		return Air
	}
	if y == col.TopY {
		return SurfaceBlock(col.Biome)
	}
	if y >= col.TopY-subsurfaceDepth {
		return Dirt
	}
	return Stone
}

func SurfaceBlock(biome string) uint16 {
	switch biome {
	case "earth":
		return Clay
	case "fire":
		return Magma
	case "wind":
		return Snow
	case "stone":
		return Stone
	case "sand", "desert":
		return Sand
	default:
		return Grass
	}
}

func (s *Sampler) biomeAt(x, z int) (string, bool) {
	if s.cfg.BiomeLayout == LayoutCells {
		b, ok := s.cells[CellKey(x, z)]
		return b, ok
	}
	q := s.cfg.QuadrantBiomes
	switch {
	case x >= 0 && z >= 0:
		return q.XPZP, true
	case x < 0 && z >= 0:
		return q.XNZP, true
	case x < 0:
		return q.XNZN, true
	default:
		return q.XPZN, true
	}
}

// Cells lists the non-void cells decor may occupy, ordered by z then x.
func (s *Sampler) Cells() []Cell {
	var out []Cell
	if s.cfg.BiomeLayout == LayoutCells {
		out = make([]Cell, 0, len(s.cells))
		for k := range s.cells {
			x, z, err := ParseCellKey(k)
			if err != nil {
				continue
			}
			col := s.Sample(x, z)
			out = append(out, Cell{X: x, Z: z, TopY: col.TopY, Biome: col.Biome})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Z != out[j].Z {
				return out[i].Z < out[j].Z
			}
			return out[i].X < out[j].X
		})
		return out
	}
	e := s.cfg.DecorExtent
	out = make([]Cell, 0, (2*e+1)*(2*e+1))
	for z := -e; z <= e; z++ {
		for x := -e; x <= e; x++ {
			col := s.Sample(x, z)
			out = append(out, Cell{X: x, Z: z, TopY: col.TopY, Biome: col.Biome})
		}
	}
	return out
}

func (s *Sampler) noise(x, z float64) float64 {
	var sum, wsum float64
	for o := 0; o < s.cfg.NoiseOctaves; o++ {
		f := octaveFreq[o]
		w := octaveWeight[o]
		sum += valueNoise(s.seed+int64(o)*1013, x*f, z*f) * w
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// valueNoise returns smoothstep-interpolated lattice noise in [-1, 1].
func valueNoise(seed int64, x, z float64) float64 {
	x0 := math.Floor(x)
	z0 := math.Floor(z)
	ix, iz := int(x0), int(z0)
	fx := smooth(x - x0)
	fz := smooth(z - z0)

	v00 := mathx.Unit(mathx.Hash2(seed, ix, iz))
	v10 := mathx.Unit(mathx.Hash2(seed, ix+1, iz))
	v01 := mathx.Unit(mathx.Hash2(seed, ix, iz+1))
	v11 := mathx.Unit(mathx.Hash2(seed, ix+1, iz+1))

	a := lerp(v00, v10, fx)
	b := lerp(v01, v11, fx)
	return lerp(a, b, fz)*2 - 1
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
