package decor

import "errors"

const (
	ColliderCylinder = "cylinder"
	ColliderAABB     = "aabb"
)

var (
	ErrSlotNotFound   = errors.New("decor slot not found")
	ErrNotCollectable = errors.New("decor is not collectable")
	ErrAlreadyRemoved = errors.New("decor already removed")
)

type Collider struct {
	Type    string  `json:"type"`
	Radius  float64 `json:"radius,omitempty"`
	Height  float64 `json:"height,omitempty"`
	HalfX   float64 `json:"half_x,omitempty"`
	HalfZ   float64 `json:"half_z,omitempty"`
	OffsetY float64 `json:"offset_y,omitempty"`
}

// Asset is a decor catalog entry.
type Asset struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	ModelPath      string   `json:"model_path"`
	IconPath       string   `json:"icon_path,omitempty"`
	Biome          string   `json:"biome"`
	TargetCount    int      `json:"target_count"`
	MinSpacing     float64  `json:"min_spacing"`
	Scale          float64  `json:"model_scale"`
	YawRandom      bool     `json:"yaw_random"`
	Collectable    bool     `json:"is_collectable"`
	RespawnSeconds int      `json:"respawn_seconds"`
	ItemCode       string   `json:"item_code,omitempty"`
	Collider       Collider `json:"collider"`
	Active         bool     `json:"is_active"`
}

type DropRow struct {
	AssetCode string  `json:"asset_code"`
	ItemCode  string  `json:"item_code"`
	Chance    float64 `json:"drop_chance_pct"`
	QtyMin    int     `json:"qty_min"`
	QtyMax    int     `json:"qty_max"`
	Priority  int     `json:"sort_order"`
	Active    bool    `json:"is_active"`
}

type Slot struct {
	Key         string   `json:"key"`
	AssetCode   string   `json:"asset_code"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	Biome       string   `json:"biome"`
	Scale       float64  `json:"scale"`
	Yaw         float64  `json:"yaw"`
	Collectable bool     `json:"collectable"`
	Collider    Collider `json:"collider"`
	ItemCode    string   `json:"item_code,omitempty"`
}

type Config struct {
	Version   int    `json:"version"`
	Seed      string `json:"seed"`
	Signature string `json:"signature"`
}

// State is the persisted decor layout of one world.
type State struct {
	Config  Config             `json:"config"`
	Slots   []Slot             `json:"slots"`
	Removed map[string]float64 `json:"removed"`
}

func (s *State) Slot(key string) (Slot, bool) {
	for _, sl := range s.Slots {
		if sl.Key == key {
			return sl, true
		}
	}
	return Slot{}, false
}

func (s *State) IsRemoved(key string) bool {
	_, ok := s.Removed[key]
	return ok
}

// Rand is satisfied by *math/rand/v2.Rand.
type Rand interface {
	Float64() float64
	IntN(n int) int
}
