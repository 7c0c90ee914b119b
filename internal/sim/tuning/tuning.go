package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Inventory  Inventory  `yaml:"inventory"`
	Characters Characters `yaml:"characters"`
	Player     Player     `yaml:"player"`
	Loot       Loot       `yaml:"loot"`
	Decor      Decor      `yaml:"decor"`
	Fall       Fall       `yaml:"fall"`
	Chat       Chat       `yaml:"chat"`
	Network    Network    `yaml:"network"`
}

type Inventory struct {
	TotalSlots  int `yaml:"total_slots"`
	HotbarSlots int `yaml:"hotbar_slots"`
}

type Characters struct {
	MaxSlots int `yaml:"max_slots"`
}

type Player struct {
	MaxHP       int     `yaml:"max_hp"`
	BlockReach  float64 `yaml:"block_reach"`
	MaxMoveStep float64 `yaml:"max_move_step"`
	BatchMaxOps int     `yaml:"batch_max_ops"`
}

type Loot struct {
	PickupRadius    float64 `yaml:"pickup_radius"`
	SpawnRadiusMin  float64 `yaml:"spawn_radius_min"`
	SpawnRadiusMax  float64 `yaml:"spawn_radius_max"`
	MinSeparation   float64 `yaml:"min_separation"`
	ScatterAttempts int     `yaml:"scatter_attempts"`
}

type Decor struct {
	MaintenanceIntervalMs int     `yaml:"maintenance_interval_ms"`
	DefaultRespawnSeconds int     `yaml:"default_respawn_seconds"`
	MinRespawnSeconds     int     `yaml:"min_respawn_seconds"`
	Reach                 float64 `yaml:"reach"`
}

type Fall struct {
	Epsilon           float64 `yaml:"epsilon"`
	SpawnProtectionMs int     `yaml:"spawn_protection_ms"`
	RespawnRingRadius int     `yaml:"respawn_ring_radius"`
	Headroom          float64 `yaml:"headroom"`
}

type Chat struct {
	MaxLen     int     `yaml:"max_len"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

type Network struct {
	RequestTimeoutMs int     `yaml:"client_request_timeout_ms"`
	StoreTimeoutMs   int     `yaml:"store_timeout_ms"`
	AdminTimeoutMs   int     `yaml:"admin_timeout_ms"`
	MaxQueue         int     `yaml:"max_queue"`
	InboundPerSec    float64 `yaml:"inbound_per_sec"`
	InboundBurst     int     `yaml:"inbound_burst"`
}

func Defaults() Tuning {
	return Tuning{
		Inventory:  Inventory{TotalSlots: 32, HotbarSlots: 8},
		Characters: Characters{MaxSlots: 3},
		Player:     Player{MaxHP: 1000, BlockReach: 6, MaxMoveStep: 16, BatchMaxOps: 64},
		Loot: Loot{
			PickupRadius:    1.35,
			SpawnRadiusMin:  0.45,
			SpawnRadiusMax:  1.35,
			MinSeparation:   0.34,
			ScatterAttempts: 20,
		},
		Decor: Decor{
			MaintenanceIntervalMs: 2000,
			DefaultRespawnSeconds: 45,
			MinRespawnSeconds:     5,
			Reach:                 6,
		},
		Fall: Fall{
			Epsilon:           0.05,
			SpawnProtectionMs: 3000,
			RespawnRingRadius: 24,
			Headroom:          1.8,
		},
		Chat: Chat{MaxLen: 240, RatePerSec: 2, Burst: 5},
		Network: Network{
			RequestTimeoutMs: 12000,
			StoreTimeoutMs:   3000,
			AdminTimeoutMs:   2500,
			MaxQueue:         256,
			InboundPerSec:    30,
			InboundBurst:     60,
		},
	}
}

// Load reads path over Defaults so that omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.Inventory.TotalSlots <= 0:
		return fmt.Errorf("inventory.total_slots must be > 0")
	case t.Inventory.HotbarSlots <= 0 || t.Inventory.HotbarSlots > t.Inventory.TotalSlots:
		return fmt.Errorf("inventory.hotbar_slots must be in 1..total_slots")
	case t.Characters.MaxSlots <= 0:
		return fmt.Errorf("characters.max_slots must be > 0")
	case t.Player.MaxHP <= 0:
		return fmt.Errorf("player.max_hp must be > 0")
	case t.Loot.SpawnRadiusMin < 0 || t.Loot.SpawnRadiusMax < t.Loot.SpawnRadiusMin:
		return fmt.Errorf("loot spawn radius range is invalid")
	case t.Decor.MinRespawnSeconds < 0:
		return fmt.Errorf("decor.min_respawn_seconds must be >= 0")
	case t.Network.MaxQueue <= 0:
		return fmt.Errorf("network.max_queue must be > 0")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (d Decor) MaintenanceInterval() time.Duration { return ms(d.MaintenanceIntervalMs) }
func (d Decor) DefaultRespawn() time.Duration      { return time.Duration(d.DefaultRespawnSeconds) * time.Second }
func (d Decor) MinRespawn() time.Duration          { return time.Duration(d.MinRespawnSeconds) * time.Second }
func (f Fall) SpawnProtection() time.Duration      { return ms(f.SpawnProtectionMs) }
func (n Network) RequestTimeout() time.Duration    { return ms(n.RequestTimeoutMs) }
func (n Network) StoreTimeout() time.Duration      { return ms(n.StoreTimeoutMs) }
func (n Network) AdminTimeout() time.Duration      { return ms(n.AdminTimeoutMs) }
