package decor

import (
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Remove marks a collectible slot as removed at now.
func Remove(st *State, key string, now time.Time) (Slot, error) {
	sl, ok := st.Slot(key)
	if !ok {
		return Slot{}, ErrSlotNotFound
	}
	if !sl.Collectable {
		return Slot{}, ErrNotCollectable
	}
	if st.IsRemoved(key) {
		return Slot{}, ErrAlreadyRemoved
	}
	if st.Removed == nil {
		st.Removed = map[string]float64{}
	}
	st.Removed[key] = unixSeconds(now)
	return sl, nil
}

// Unremove undoes Remove, used when the removal could not be persisted.
func Unremove(st *State, key string) {
	delete(st.Removed, key)
}

type Maintainer struct {
	Interval       time.Duration
	DefaultRespawn time.Duration
	MinRespawn     time.Duration

	last map[int64]time.Time
}

func NewMaintainer(interval, defaultRespawn, minRespawn time.Duration) *Maintainer {
	return &Maintainer{
		Interval:       interval,
		DefaultRespawn: defaultRespawn,
		MinRespawn:     minRespawn,
		last:           map[int64]time.Time{},
	}
}

func (m *Maintainer) respawnFor(a Asset, ok bool) time.Duration {
	d := m.DefaultRespawn
	if ok && a.RespawnSeconds > 0 {
		d = time.Duration(a.RespawnSeconds) * time.Second
	}
	if d < m.MinRespawn {
		d = m.MinRespawn
	}
	return d
}

// Maintain restores slots whose respawn delay has elapsed. Unless force is set
// it runs at most once per Interval per world; skipped runs return nil.
func (m *Maintainer) Maintain(worldID int64, st *State, assets []Asset, now time.Time, force bool) []string {
	if !force {
		if last, ok := m.last[worldID]; ok && now.Sub(last) < m.Interval {
			return nil
		}
	}
	m.last[worldID] = now
	if len(st.Removed) == 0 {
		return nil
	}
	byCode := make(map[string]Asset, len(assets))
	for _, a := range assets {
		byCode[a.Code] = a
	}
	nowS := unixSeconds(now)
	var out []string
	for _, sl := range st.Slots {
		at, removed := st.Removed[sl.Key]
		if !removed {
			continue
		}
		a, ok := byCode[sl.AssetCode]
		if nowS-at >= m.respawnFor(a, ok).Seconds() {
			delete(st.Removed, sl.Key)
			out = append(out, sl.Key)
		}
	}
	sort.Strings(out)
	return out
}

// Forget drops the throttle entry for a world whose caches were evicted.
func (m *Maintainer) Forget(worldID int64) {
	delete(m.last, worldID)
}

type Drop struct {
	ItemCode string
	Quantity int
}

// RollDrops runs one independent trial per active row in priority order. With
// no rows at all, fallback (when set) drops exactly once.
func RollDrops(rng Rand, rows []DropRow, fallback string) []Drop {
	if len(rows) == 0 {
		if fallback == "" {
			return nil
		}
		return []Drop{{ItemCode: fallback, Quantity: 1}}
	}
	ordered := append([]DropRow(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ItemCode < ordered[j].ItemCode
	})
	var out []Drop
	for _, r := range ordered {
		if !r.Active || r.ItemCode == "" {
			continue
		}
		chance := math.Max(0, math.Min(100, r.Chance))
		if rng.Float64()*100 >= chance {
			continue
		}
		lo := max(1, r.QtyMin)
		hi := max(lo, r.QtyMax)
		out = append(out, Drop{ItemCode: r.ItemCode, Quantity: lo + rng.IntN(hi-lo+1)})
	}
	return out
}

type ScatterConfig struct {
	MinRadius     float64
	MaxRadius     float64
	MinSeparation float64
	Attempts      int
}

func DefaultScatter() ScatterConfig {
	return ScatterConfig{MinRadius: 0.45, MaxRadius: 1.35, MinSeparation: 0.34, Attempts: 20}
}

// Scatter places n drops on a ring around base, keeping MinSeparation between
// them when a free spot is found within Attempts tries.
func Scatter(rng Rand, base mgl64.Vec3, n int, cfg ScatterConfig) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, n)
	ring := func() (float64, float64) {
		ang := rng.Float64() * 2 * math.Pi
		r := cfg.MinRadius + rng.Float64()*(cfg.MaxRadius-cfg.MinRadius)
		return base.X() + math.Cos(ang)*r, base.Z() + math.Sin(ang)*r
	}
	for i := 0; i < n; i++ {
		y := base.Y() + 0.04 + 0.02*float64(min(3, i))
		var x, z float64
		found := false
		for a := 0; a < cfg.Attempts && !found; a++ {
			x, z = ring()
			found = true
			for _, p := range out {
				if math.Hypot(p.X()-x, p.Z()-z) < cfg.MinSeparation {
					found = false
					break
				}
			}
		}
		if !found {
			x, z = ring()
		}
		out = append(out, mgl64.Vec3{x, y, z})
	}
	return out
}
