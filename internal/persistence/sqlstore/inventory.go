package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"voxelrealm.ai/internal/sim/inventory"
)

func loadSlots(ctx context.Context, q querier, userID int64, layout inventory.Layout) (*inventory.Grid, error) {
	rows, err := q.QueryContext(ctx, `SELECT slot_index,item_code,quantity FROM inventory_slots WHERE user_id=? ORDER BY slot_index`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []inventory.Slot
	for rows.Next() {
		var sl inventory.Slot
		if err := rows.Scan(&sl.Index, &sl.ItemCode, &sl.Quantity); err != nil {
			return nil, err
		}
		slots = append(slots, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inventory.FromSlots(layout, slots), nil
}

func (s *Store) Inventory(ctx context.Context, userID int64, layout inventory.Layout) (*inventory.Grid, error) {
	g, err := loadSlots(ctx, s.db, userID, layout)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return g, nil
}

// txCatalog resolves items through the open transaction; the pool has a
// single connection so a lookup on s.db would block until commit.
type txCatalog struct {
	ctx   context.Context
	tx    *sql.Tx
	cache map[string]inventory.Item
	err   error
}

func (c *txCatalog) Item(code string) (inventory.Item, bool) {
	if it, ok := c.cache[code]; ok {
		return it, true
	}
	items, err := itemsIn(c.ctx, c.tx, []string{code})
	if err != nil {
		c.err = err
		return inventory.Item{}, false
	}
	it, ok := items[code]
	if ok {
		c.cache[code] = it
	}
	return it, ok
}

func (s *Store) UpdateInventory(ctx context.Context, userID int64, layout inventory.Layout, fn func(*inventory.Grid, inventory.Catalog) error) (*inventory.Grid, error) {
	var out *inventory.Grid
	var fnErr error
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		g, err := loadSlots(ctx, tx, userID, layout)
		if err != nil {
			return err
		}
		cat := &txCatalog{ctx: ctx, tx: tx, cache: map[string]inventory.Item{}}
		if err := fn(g, cat); err != nil {
			fnErr = err
			return err
		}
		if cat.err != nil {
			return cat.err
		}
		if err := g.Validate(cat); err != nil {
			return fmt.Errorf("inventory invariant: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_slots WHERE user_id=?`, userID); err != nil {
			return err
		}
		for _, sl := range g.Slots {
			if sl.Empty() {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO inventory_slots(user_id,slot_index,item_code,quantity) VALUES(?,?,?,?)`,
				userID, sl.Index, sl.ItemCode, sl.Quantity); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, fmt.Errorf("update inventory: %w", err)
	}
	return out, nil
}
