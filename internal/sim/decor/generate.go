package decor

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"voxelrealm.ai/internal/sim/mathx"
	"voxelrealm.ai/internal/sim/terrain"
)

const (
	LayoutVersion     = 3
	defaultMinSpacing = 1.5
	floorMinSpacing   = 0.25
)

func MatchesBiome(filter, biome string) bool {
	switch filter {
	case "", "any", "todos":
		return true
	}
	return filter == biome
}

func SlotKey(asset string, x, z int) string {
	return asset + ":" + terrain.CellKey(x, z)
}

func spacingOf(a Asset) float64 {
	sp := a.MinSpacing
	if sp <= 0 {
		sp = defaultMinSpacing
	}
	return math.Max(floorMinSpacing, sp)
}

func scaleOf(a Asset) float64 {
	if a.Scale <= 0 {
		return 1
	}
	return mathx.Clamp(a.Scale, 0.2, 10)
}

func normalizeCollider(c Collider, scale float64) Collider {
	if c.Type != ColliderAABB {
		c.Type = ColliderCylinder
		if c.Radius <= 0 {
			c.Radius = 0.35 * scale
		}
		c.HalfX, c.HalfZ = 0, 0
	} else {
		if c.HalfX <= 0 {
			c.HalfX = 0.5 * scale
		}
		if c.HalfZ <= 0 {
			c.HalfZ = 0.5 * scale
		}
		c.Radius = 0
	}
	if c.Height <= 0 {
		c.Height = 1.6 * scale
	}
	return c
}

// stableUnit maps (seed, asset, cell, salt) to [0, 1).
func stableUnit(seed, asset, cellKey, salt string) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:decor:v%d|%s:%s|%s", seed, LayoutVersion, asset, cellKey, salt)))
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / float64(uint64(1)<<53)
}

type placement struct {
	x, z    float64
	spacing float64
}

// GenerateSlots lays out decor deterministically. Assets are processed in the
// given order and spacing is enforced against every earlier placement.
func GenerateSlots(seed string, cells []terrain.Cell, assets []Asset) []Slot {
	var (
		out    []Slot
		placed []placement
	)
	for _, a := range assets {
		if !a.Active || a.TargetCount <= 0 || a.Code == "" {
			continue
		}
		type cand struct {
			cell  terrain.Cell
			score float64
		}
		cands := make([]cand, 0, len(cells))
		for _, c := range cells {
			if !MatchesBiome(a.Biome, c.Biome) {
				continue
			}
			cands = append(cands, cand{cell: c, score: stableUnit(seed, a.Code, c.Key(), "slot")})
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].score < cands[j].score })

		sp := spacingOf(a)
		scale := scaleOf(a)
		col := normalizeCollider(a.Collider, scale)
		accepted := 0
		for _, c := range cands {
			if accepted >= a.TargetCount {
				break
			}
			x, z := float64(c.cell.X), float64(c.cell.Z)
			ok := true
			for _, p := range placed {
				if math.Hypot(x-p.x, z-p.z) < math.Max(sp, p.spacing) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			yaw := 0.0
			if a.YawRandom {
				yaw = stableUnit(seed, a.Code, c.cell.Key(), "yaw") * 2 * math.Pi
			}
			placed = append(placed, placement{x: x, z: z, spacing: sp})
			out = append(out, Slot{
				Key:         SlotKey(a.Code, c.cell.X, c.cell.Z),
				AssetCode:   a.Code,
				X:           x + 0.5,
				Y:           float64(c.cell.TopY + 1),
				Z:           z + 0.5,
				Biome:       c.cell.Biome,
				Scale:       scale,
				Yaw:         yaw,
				Collectable: a.Collectable,
				Collider:    col,
				ItemCode:    a.ItemCode,
			})
			accepted++
		}
	}
	return out
}

type signatureAsset struct {
	Code           string   `json:"code"`
	ModelPath      string   `json:"model_path"`
	Biome          string   `json:"biome"`
	TargetCount    int      `json:"target_count"`
	MinSpacing     float64  `json:"min_spacing"`
	Scale          float64  `json:"scale"`
	YawRandom      bool     `json:"yaw_random"`
	Collectable    bool     `json:"collectable"`
	RespawnSeconds int      `json:"respawn_seconds"`
	ItemCode       string   `json:"item_code"`
	Collider       Collider `json:"collider"`
}

// Signature fingerprints everything that influences GenerateSlots. Any change
// to it invalidates a persisted layout.
func Signature(worldID int64, seed string, assets []Asset) string {
	list := make([]signatureAsset, 0, len(assets))
	for _, a := range assets {
		if !a.Active {
			continue
		}
		scale := scaleOf(a)
		list = append(list, signatureAsset{
			Code:           a.Code,
			ModelPath:      a.ModelPath,
			Biome:          a.Biome,
			TargetCount:    a.TargetCount,
			MinSpacing:     spacingOf(a),
			Scale:          scale,
			YawRandom:      a.YawRandom,
			Collectable:    a.Collectable,
			RespawnSeconds: a.RespawnSeconds,
			ItemCode:       a.ItemCode,
			Collider:       normalizeCollider(a.Collider, scale),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	b, _ := json.Marshal(struct {
		Version int              `json:"version"`
		WorldID int64            `json:"world_id"`
		Seed    string           `json:"seed"`
		Assets  []signatureAsset `json:"assets"`
	}{LayoutVersion, worldID, seed, list})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Ensure regenerates st when its signature is stale and drops removal entries
// for slots that no longer exist. cells is only called on regeneration.
func Ensure(st *State, worldID int64, seed string, assets []Asset, cells func() []terrain.Cell) (regenerated bool) {
	sig := Signature(worldID, seed, assets)
	if st.Config.Signature != sig || st.Config.Seed != seed || st.Config.Version != LayoutVersion {
		st.Config = Config{Version: LayoutVersion, Seed: seed, Signature: sig}
		st.Slots = GenerateSlots(seed, cells(), assets)
		regenerated = true
	}
	if st.Removed == nil {
		st.Removed = map[string]float64{}
	}
	valid := make(map[string]struct{}, len(st.Slots))
	for _, sl := range st.Slots {
		valid[sl.Key] = struct{}{}
	}
	for k := range st.Removed {
		if _, ok := valid[k]; !ok {
			delete(st.Removed, k)
		}
	}
	return regenerated
}
