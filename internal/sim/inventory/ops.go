package inventory

func stackOf(cat Catalog, code string) int {
	if it, ok := cat.Item(code); ok {
		return it.Stack()
	}
	return 1
}

// Move relocates, merges or swaps the stack at src with dst.
func Move(g *Grid, cat Catalog, src, dst int) error {
	if !g.valid(src) || !g.valid(dst) {
		return ErrBadSlot
	}
	if src == dst {
		return ErrSameSlot
	}
	s, d := g.Slots[src], g.Slots[dst]
	if s.Empty() {
		return ErrEmptySlot
	}
	switch {
	case d.Empty():
		g.set(dst, s.ItemCode, s.Quantity)
		g.clear(src)
	case d.ItemCode == s.ItemCode:
		free := stackOf(cat, s.ItemCode) - d.Quantity
		if free <= 0 {
			return nil // full stack: nothing moves
		}
		n := min(free, s.Quantity)
		g.set(dst, d.ItemCode, d.Quantity+n)
		g.set(src, s.ItemCode, s.Quantity-n)
	default:
		g.set(dst, s.ItemCode, s.Quantity)
		g.set(src, d.ItemCode, d.Quantity)
	}
	return nil
}

// Split moves half of src into dst.
func Split(g *Grid, cat Catalog, src, dst int) error {
	if !g.valid(src) || !g.valid(dst) {
		return ErrBadSlot
	}
	if src == dst {
		return ErrSameSlot
	}
	s, d := g.Slots[src], g.Slots[dst]
	if s.Empty() {
		return ErrEmptySlot
	}
	if s.Quantity < 2 {
		return ErrNotEnough
	}
	half := s.Quantity / 2
	switch {
	case d.Empty():
		g.set(dst, s.ItemCode, half)
		g.set(src, s.ItemCode, s.Quantity-half)
	case d.ItemCode == s.ItemCode:
		free := stackOf(cat, s.ItemCode) - d.Quantity
		n := min(half, free)
		if n <= 0 {
			return ErrDestinationFull
		}
		g.set(dst, d.ItemCode, d.Quantity+n)
		g.set(src, s.ItemCode, s.Quantity-n)
	default:
		return ErrDifferentItem
	}
	return nil
}

// ShiftClick sends a hotbar stack to the general slots and vice versa. The
// first slot already holding the item with room wins, else the first empty one.
func ShiftClick(g *Grid, cat Catalog, src int) (dst int, err error) {
	if !g.valid(src) {
		return -1, ErrBadSlot
	}
	s := g.Slots[src]
	if s.Empty() {
		return -1, ErrEmptySlot
	}
	lo, hi := g.Layout.Hotbar, len(g.Slots)
	if src >= g.Layout.Hotbar {
		lo, hi = 0, g.Layout.Hotbar
	}
	stack := stackOf(cat, s.ItemCode)
	dst = -1
	for i := lo; i < hi; i++ {
		if sl := g.Slots[i]; sl.ItemCode == s.ItemCode && sl.Quantity < stack {
			dst = i
			break
		}
	}
	if dst < 0 {
		for i := lo; i < hi; i++ {
			if g.Slots[i].Empty() {
				dst = i
				break
			}
		}
	}
	if dst < 0 {
		return -1, ErrNoRoom
	}
	d := g.Slots[dst]
	n := min(s.Quantity, stack-d.Quantity)
	g.set(dst, s.ItemCode, d.Quantity+n)
	g.set(src, s.ItemCode, s.Quantity-n)
	return dst, nil
}

type AddResult struct {
	Added int `json:"added"`
	Left  int `json:"left"`
}

// Add places qty units of code, topping up existing stacks before using
// empty slots. Both passes run in index order so the hotbar fills first.
func Add(g *Grid, cat Catalog, code string, qty int) (AddResult, error) {
	if qty <= 0 {
		return AddResult{}, ErrBadQuantity
	}
	it, ok := cat.Item(code)
	if !ok || !it.Active {
		return AddResult{}, ErrUnknownItem
	}
	stack := it.Stack()
	left := qty
	for i := 0; i < len(g.Slots) && left > 0; i++ {
		s := g.Slots[i]
		if s.ItemCode != code || s.Quantity >= stack {
			continue
		}
		n := min(left, stack-s.Quantity)
		g.set(i, code, s.Quantity+n)
		left -= n
	}
	for i := 0; i < len(g.Slots) && left > 0; i++ {
		if !g.Slots[i].Empty() {
			continue
		}
		n := min(left, stack)
		g.set(i, code, n)
		left -= n
	}
	return AddResult{Added: qty - left, Left: left}, nil
}

// Use consumes one unit from a hotbar slot and returns its decoded effect.
func Use(g *Grid, cat Catalog, slot int) (Item, Effect, error) {
	if !g.valid(slot) {
		return Item{}, Effect{}, ErrBadSlot
	}
	if slot >= g.Layout.Hotbar {
		return Item{}, Effect{}, ErrNotHotbar
	}
	s := g.Slots[slot]
	if s.Empty() {
		return Item{}, Effect{}, ErrEmptySlot
	}
	it, ok := cat.Item(s.ItemCode)
	if !ok {
		return Item{}, Effect{}, ErrUnknownItem
	}
	eff, ok := DecodeEffect(it)
	if !ok {
		return it, Effect{}, ErrNotConsumable
	}
	g.set(slot, s.ItemCode, s.Quantity-1)
	return it, eff, nil
}
