package terrain

import "voxelrealm.ai/internal/sim/mathx"

const (
	LayoutQuadrants = "quadrants"
	LayoutCells     = "cells"
)

type Quadrants struct {
	XPZP string `json:"xp_zp"`
	XNZP string `json:"xn_zp"`
	XNZN string `json:"xn_zn"`
	XPZN string `json:"xp_zn"`
}

type Physics struct {
	MoveSpeed        float64 `json:"move_speed"`
	SprintMultiplier float64 `json:"sprint_multiplier"`
	JumpVelocity     float64 `json:"jump_velocity"`
	Gravity          float64 `json:"gravity"`
	TerminalVelocity float64 `json:"terminal_velocity"`
}

// Config is persisted per world as JSON and sent to clients verbatim on entry.
type Config struct {
	ChunkSize      int                `json:"chunk_size"`
	WorldHeight    int                `json:"world_height"`
	SurfaceHeight  int                `json:"surface_height"`
	NoiseAmplitude float64            `json:"noise_amplitude"`
	NoiseScale     float64            `json:"noise_scale"`
	NoiseOctaves   int                `json:"noise_octaves"`
	BiomeLayout    string             `json:"biome_layout"`
	QuadrantBiomes Quadrants          `json:"quadrant_biomes"`
	BiomeBias      map[string]float64 `json:"biome_bias,omitempty"`
	BiomeRoughness map[string]float64 `json:"biome_roughness,omitempty"`
	DecorExtent    int                `json:"decor_extent"`

	VoidHeight          float64    `json:"void_height"`
	SpawnHint           [3]float64 `json:"spawn_hint"`
	FallDamageEnabled   bool       `json:"fall_damage_enabled"`
	VoidDeathEnabled    bool       `json:"void_death_enabled"`
	FallThresholdVoxels float64    `json:"fall_death_threshold_voxels"`

	Physics Physics `json:"physics"`
}

func Default() Config {
	return Normalize(Config{
		WorldHeight:       128,
		NoiseAmplitude:    20,
		NoiseScale:        0.02,
		NoiseOctaves:      2,
		FallDamageEnabled: true,
		VoidDeathEnabled:  true,
	})
}

// Normalize fills zero fields and clamps the rest into their supported ranges.
func Normalize(c Config) Config {
	c.ChunkSize = 16
	if c.WorldHeight == 0 {
		c.WorldHeight = 128
	}
	c.WorldHeight = mathx.ClampInt(c.WorldHeight, 64, 256)
	if c.SurfaceHeight <= 0 || c.SurfaceHeight >= c.WorldHeight-2 {
		c.SurfaceHeight = c.WorldHeight / 2
	}
	if c.NoiseAmplitude == 0 {
		c.NoiseAmplitude = 20
	}
	c.NoiseAmplitude = mathx.Clamp(c.NoiseAmplitude, 4, 40)
	if c.NoiseScale == 0 {
		c.NoiseScale = 0.02
	}
	c.NoiseScale = mathx.Clamp(c.NoiseScale, 0.003, 0.12)
	if c.NoiseOctaves == 0 {
		c.NoiseOctaves = 2
	}
	c.NoiseOctaves = mathx.ClampInt(c.NoiseOctaves, 1, len(octaveFreq))
	if c.BiomeLayout != LayoutCells {
		c.BiomeLayout = LayoutQuadrants
	}
	if c.QuadrantBiomes == (Quadrants{}) {
		c.QuadrantBiomes = Quadrants{XPZP: "fire", XNZP: "grass", XNZN: "earth", XPZN: "wind"}
	}
	if c.DecorExtent <= 0 {
		c.DecorExtent = 48
	}
	if c.VoidHeight == 0 {
		c.VoidHeight = -64
	}
	if c.FallThresholdVoxels == 0 {
		c.FallThresholdVoxels = 10
	}
	c.FallThresholdVoxels = mathx.Clamp(c.FallThresholdVoxels, 1, 120)
	if c.SpawnHint == ([3]float64{}) {
		c.SpawnHint = [3]float64{0, float64(min(c.WorldHeight-2, c.SurfaceHeight+2)), 0}
	}
	if c.Physics == (Physics{}) {
		c.Physics = Physics{
			MoveSpeed:        4.6,
			SprintMultiplier: 1.45,
			JumpVelocity:     7.2,
			Gravity:          19,
			TerminalVelocity: 34,
		}
	}
	return c
}
