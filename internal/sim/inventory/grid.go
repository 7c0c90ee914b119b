package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadSlot         = errors.New("invalid slot index")
	ErrSameSlot        = errors.New("source and destination are the same slot")
	ErrEmptySlot       = errors.New("slot is empty")
	ErrUnknownItem     = errors.New("unknown item")
	ErrBadQuantity     = errors.New("invalid quantity")
	ErrNotEnough       = errors.New("not enough items to split")
	ErrDifferentItem   = errors.New("destination holds a different item")
	ErrDestinationFull = errors.New("destination stack is full")
	ErrNoRoom          = errors.New("no room for item")
	ErrNotHotbar       = errors.New("only hotbar slots can be used")
	ErrNotConsumable   = errors.New("item is not usable")
)

type Layout struct {
	Total  int
	Hotbar int
}

func DefaultLayout() Layout { return Layout{Total: 32, Hotbar: 8} }

type Slot struct {
	Index    int    `json:"slot_index"`
	ItemCode string `json:"item_code,omitempty"`
	Quantity int    `json:"quantity"`
}

func (s Slot) Empty() bool { return s.ItemCode == "" || s.Quantity <= 0 }

type Item struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Type       string          `json:"item_type"`
	Rarity     string          `json:"rarity,omitempty"`
	MaxStack   int             `json:"max_stack"`
	IconPath   string          `json:"icon_path,omitempty"`
	ModelPath  string          `json:"model_path,omitempty"`
	Active     bool            `json:"is_active"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

func (it Item) Stack() int {
	if it.MaxStack <= 0 {
		return 1
	}
	return it.MaxStack
}

type Catalog interface {
	Item(code string) (Item, bool)
}

// MapCatalog is a Catalog backed by a map keyed by item code.
type MapCatalog map[string]Item

func (m MapCatalog) Item(code string) (Item, bool) {
	it, ok := m[code]
	return it, ok
}

// Grid is one user's inventory. Slots[i].Index == i always holds.
type Grid struct {
	Layout Layout
	Slots  []Slot
}

func NewGrid(l Layout) *Grid {
	g := &Grid{Layout: l, Slots: make([]Slot, l.Total)}
	for i := range g.Slots {
		g.Slots[i].Index = i
	}
	return g
}

// FromSlots builds a grid from stored rows, ignoring rows outside the layout.
func FromSlots(l Layout, rows []Slot) *Grid {
	g := NewGrid(l)
	for _, r := range rows {
		if r.Index < 0 || r.Index >= l.Total || r.Empty() {
			continue
		}
		g.Slots[r.Index] = Slot{Index: r.Index, ItemCode: r.ItemCode, Quantity: r.Quantity}
	}
	return g
}

func (g *Grid) Clone() *Grid {
	c := &Grid{Layout: g.Layout, Slots: make([]Slot, len(g.Slots))}
	copy(c.Slots, g.Slots)
	return c
}

func (g *Grid) valid(i int) bool { return i >= 0 && i < len(g.Slots) }

func (g *Grid) clear(i int) { g.Slots[i] = Slot{Index: i} }

func (g *Grid) set(i int, code string, qty int) {
	if qty <= 0 || code == "" {
		g.clear(i)
		return
	}
	g.Slots[i] = Slot{Index: i, ItemCode: code, Quantity: qty}
}

// Codes returns the distinct item codes present, in slot order.
func (g *Grid) Codes() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range g.Slots {
		if s.Empty() || seen[s.ItemCode] {
			continue
		}
		seen[s.ItemCode] = true
		out = append(out, s.ItemCode)
	}
	return out
}

// Validate checks the slot invariants against cat. Codes cat no longer knows
// are left alone; a retired item can still be held.
func (g *Grid) Validate(cat Catalog) error {
	for i, s := range g.Slots {
		if s.Index != i {
			return fmt.Errorf("slot %d has index %d", i, s.Index)
		}
		if (s.ItemCode == "") != (s.Quantity == 0) {
			return fmt.Errorf("slot %d: code %q with quantity %d", i, s.ItemCode, s.Quantity)
		}
		if s.ItemCode == "" {
			continue
		}
		if s.Quantity < 0 {
			return fmt.Errorf("slot %d: negative quantity %d", i, s.Quantity)
		}
		it, ok := cat.Item(s.ItemCode)
		if !ok {
			continue
		}
		if s.Quantity > it.Stack() {
			return fmt.Errorf("slot %d: quantity %d exceeds stack %d", i, s.Quantity, it.Stack())
		}
	}
	return nil
}
