package decor

import (
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

type Loot struct {
	Key       string
	ItemCode  string
	ItemName  string
	ModelPath string
	IconPath  string
	Scale     float64
	Quantity  int
	Pos       mgl64.Vec3
	Source    string
	SpawnedAt time.Time
}

// LootBucket holds the ground loot of one world. It lives only in memory.
type LootBucket struct {
	items map[string]*Loot
}

func NewLootBucket() *LootBucket {
	return &LootBucket{items: map[string]*Loot{}}
}

func (b *LootBucket) Add(l *Loot) { b.items[l.Key] = l }

func (b *LootBucket) Get(key string) (*Loot, bool) {
	l, ok := b.items[key]
	return l, ok
}

func (b *LootBucket) Remove(key string) { delete(b.items, key) }

// Take removes picked units and reports whether the entity is gone.
func (b *LootBucket) Take(key string, picked int) (remaining int, gone bool) {
	l, ok := b.items[key]
	if !ok {
		return 0, true
	}
	l.Quantity -= picked
	if l.Quantity <= 0 {
		delete(b.items, key)
		return 0, true
	}
	return l.Quantity, false
}

func (b *LootBucket) Clear() { b.items = map[string]*Loot{} }

func (b *LootBucket) Len() int { return len(b.items) }

func (b *LootBucket) List() []*Loot {
	out := make([]*Loot, 0, len(b.items))
	for _, l := range b.items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
