package fall

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Probe answers voxel queries for respawn search.
type Probe interface {
	TopSolid(x, z int) (int, bool)
	Solid(x, y, z int) bool
	Height() int
}

// FindRespawn looks for the nearest standable column around from, then around
// hint, in growing square rings. It falls back to hint itself.
func FindRespawn(p Probe, from, hint mgl64.Vec3, maxRing int, headroom float64) mgl64.Vec3 {
	if pos, ok := searchRings(p, from, maxRing, headroom); ok {
		return pos
	}
	if pos, ok := searchRings(p, hint, maxRing, headroom); ok {
		return pos
	}
	return hint
}

func searchRings(p Probe, center mgl64.Vec3, maxRing int, headroom float64) (mgl64.Vec3, bool) {
	cx := int(math.Floor(center.X()))
	cz := int(math.Floor(center.Z()))
	need := int(math.Ceil(headroom))
	for r := 0; r <= maxRing; r++ {
		best := mgl64.Vec3{}
		bestD := math.Inf(1)
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dz)) != r {
					continue
				}
				x, z := cx+dx, cz+dz
				top, ok := p.TopSolid(x, z)
				if !ok || !hasHeadroom(p, x, top+1, z, need) {
					continue
				}
				cand := mgl64.Vec3{float64(x) + 0.5, float64(top + 1), float64(z) + 0.5}
				d := cand.Sub(center).Len()
				if d < bestD {
					best, bestD = cand, d
				}
			}
		}
		if !math.IsInf(bestD, 1) {
			return best, true
		}
	}
	return mgl64.Vec3{}, false
}

func hasHeadroom(p Probe, x, y, z, n int) bool {
	if y+n > p.Height() {
		return false
	}
	for i := 0; i < n; i++ {
		if p.Solid(x, y+i, z) {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
