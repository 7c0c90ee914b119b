package voxel

import (
	"sort"

	"voxelrealm.ai/internal/sim/mathx"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

// Override is a persisted voxel in chunk-local coordinates.
type Override struct {
	LX    int
	Y     int
	LZ    int
	Block uint16
}

type ChunkRecord struct {
	Key       ChunkKey
	Overrides []Override
}

// Base is the procedural fallback for voxels without an override.
type Base interface {
	BaseBlock(x, y, z int) uint16
	Height() int
}

type local struct{ x, y, z int }

// Store holds player edits layered over a Base. It is owned by the world loop
// and is not safe for concurrent use.
type Store struct {
	base   Base
	chunks map[ChunkKey]map[local]uint16
	loaded bool
}

func NewStore(base Base) *Store {
	return &Store{
		base:   base,
		chunks: map[ChunkKey]map[local]uint16{},
	}
}

func ChunkOf(x, z int) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(x, ChunkSize), CZ: mathx.FloorDiv(z, ChunkSize)}
}

func split(x, z int) (ChunkKey, int, int) {
	return ChunkOf(x, z), mathx.Mod(x, ChunkSize), mathx.Mod(z, ChunkSize)
}

func (s *Store) Loaded() bool { return s.loaded }

// Load installs persisted chunks. Rows equal to the base block are skipped and
// counted in the returned value.
func (s *Store) Load(recs []ChunkRecord) (collapsed int) {
	for _, rec := range recs {
		for _, o := range rec.Overrides {
			if o.LX < 0 || o.LX >= ChunkSize || o.LZ < 0 || o.LZ >= ChunkSize || !s.InHeight(o.Y) {
				collapsed++
				continue
			}
			x := rec.Key.CX*ChunkSize + o.LX
			z := rec.Key.CZ*ChunkSize + o.LZ
			if s.base.BaseBlock(x, o.Y, z) == o.Block {
				collapsed++
				continue
			}
			m := s.chunks[rec.Key]
			if m == nil {
				m = map[local]uint16{}
				s.chunks[rec.Key] = m
			}
			m[local{o.LX, o.Y, o.LZ}] = o.Block
		}
	}
	s.loaded = true
	return collapsed
}

func (s *Store) InHeight(y int) bool {
	return y >= 0 && y < s.base.Height()
}

func (s *Store) Height() int { return s.base.Height() }

func (s *Store) EffectiveBlock(x, y, z int) uint16 {
	if !s.InHeight(y) {
		return 0
	}
	k, lx, lz := split(x, z)
	if m := s.chunks[k]; m != nil {
		if b, ok := m[local{lx, y, lz}]; ok {
			return b
		}
	}
	return s.base.BaseBlock(x, y, z)
}

func (s *Store) Solid(x, y, z int) bool {
	return s.EffectiveBlock(x, y, z) != 0
}

// TopSolid returns the highest solid voxel in the column.
func (s *Store) TopSolid(x, z int) (int, bool) {
	for y := s.base.Height() - 1; y >= 0; y-- {
		if s.Solid(x, y, z) {
			return y, true
		}
	}
	return 0, false
}

// SetOverride records id at (x,y,z). Setting a voxel back to its base value
// removes the override. changed is false when the effective block was already id.
func (s *Store) SetOverride(x, y, z int, id uint16) (changed bool, key ChunkKey) {
	k, lx, lz := split(x, z)
	if !s.InHeight(y) {
		return false, k
	}
	if s.EffectiveBlock(x, y, z) == id {
		return false, k
	}
	l := local{lx, y, lz}
	if s.base.BaseBlock(x, y, z) == id {
		if m := s.chunks[k]; m != nil {
			delete(m, l)
			if len(m) == 0 {
				delete(s.chunks, k)
			}
		}
		return true, k
	}
	m := s.chunks[k]
	if m == nil {
		m = map[local]uint16{}
		s.chunks[k] = m
	}
	m[l] = id
	return true, k
}

// ChunkOverrides returns the chunk's override set sorted by (y, lz, lx).
func (s *Store) ChunkOverrides(k ChunkKey) []Override {
	m := s.chunks[k]
	out := make([]Override, 0, len(m))
	for l, b := range m {
		out = append(out, Override{LX: l.x, Y: l.y, LZ: l.z, Block: b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		if out[i].LZ != out[j].LZ {
			return out[i].LZ < out[j].LZ
		}
		return out[i].LX < out[j].LX
	})
	return out
}

func (s *Store) ChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *Store) Chunks() []ChunkRecord {
	keys := s.ChunkKeys()
	out := make([]ChunkRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, ChunkRecord{Key: k, Overrides: s.ChunkOverrides(k)})
	}
	return out
}

// Len is the total number of overrides.
func (s *Store) Len() int {
	n := 0
	for _, m := range s.chunks {
		n += len(m)
	}
	return n
}
