package world

import (
	"context"
	"time"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/inventory"
)

func (s *Server) inventoryViewOf(ctx context.Context, g *inventory.Grid) (protocol.InventoryView, error) {
	items, err := s.store.Items(ctx, g.Codes())
	if err != nil {
		return protocol.InventoryView{}, storageErr("load items", err)
	}
	return inventoryView(g, items), nil
}

// committedView describes a grid that is already persisted. Item details are
// best effort: on a lookup failure the slots go out without them.
func (s *Server) committedView(ctx context.Context, g *inventory.Grid) protocol.InventoryView {
	items, err := s.store.Items(ctx, g.Codes())
	if err != nil {
		s.log.Printf("inventory view: load items: %v", err)
		items = nil
	}
	return inventoryView(g, items)
}

// mutateInventory runs fn in one store transaction and returns the committed
// grid as a view.
func (s *Server) mutateInventory(ctx context.Context, userID int64, op string, fn func(*inventory.Grid, inventory.Catalog) error) (protocol.InventoryView, error) {
	g, err := s.store.UpdateInventory(ctx, userID, s.layout, fn)
	if err != nil {
		return protocol.InventoryView{}, inventoryErr(op, err)
	}
	return s.committedView(ctx, g), nil
}

func (s *Server) handleInventoryGet(ctx context.Context, c *client, req protocol.Request) (any, error) {
	g, err := s.store.Inventory(ctx, c.sess.UserID, s.layout)
	if err != nil {
		return nil, storageErr("load inventory", err)
	}
	view, err := s.inventoryViewOf(ctx, g)
	if err != nil {
		return nil, err
	}
	return protocol.InventoryResp{OK: true, Inventory: view}, nil
}

func (s *Server) handleInventoryMove(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.SlotPairReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	view, err := s.mutateInventory(ctx, c.sess.UserID, "inventory move", func(g *inventory.Grid, cat inventory.Catalog) error {
		return inventory.Move(g, cat, p.Src, p.Dst)
	})
	if err != nil {
		return nil, err
	}
	return protocol.InventoryResp{OK: true, Inventory: view}, nil
}

func (s *Server) handleInventorySplit(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.SlotPairReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	view, err := s.mutateInventory(ctx, c.sess.UserID, "inventory split", func(g *inventory.Grid, cat inventory.Catalog) error {
		return inventory.Split(g, cat, p.Src, p.Dst)
	})
	if err != nil {
		return nil, err
	}
	return protocol.InventoryResp{OK: true, Inventory: view}, nil
}

func (s *Server) handleInventoryShiftClick(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.SlotReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	view, err := s.mutateInventory(ctx, c.sess.UserID, "inventory shift click", func(g *inventory.Grid, cat inventory.Catalog) error {
		_, err := inventory.ShiftClick(g, cat, p.Slot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return protocol.InventoryResp{OK: true, Inventory: view}, nil
}

func (s *Server) handleInventoryUse(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.SlotReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	var (
		used inventory.Item
		eff  inventory.Effect
	)
	view, err := s.mutateInventory(ctx, c.sess.UserID, "inventory use", func(g *inventory.Grid, cat inventory.Catalog) error {
		var err error
		used, eff, err = inventory.Use(g, cat, p.Slot)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.applyEffect(c.sess, eff)
	return protocol.InventoryUseResp{
		OK:        true,
		Item:      used.Code,
		Effect:    protocol.EffectView{Type: eff.Type, Value: eff.Value, DurationMS: eff.DurationMS, Stat: eff.Stat},
		HP:        c.sess.HP,
		MaxHP:     c.sess.MaxHP,
		Inventory: view,
	}, nil
}

func (s *Server) applyEffect(sess *Session, eff inventory.Effect) {
	now := s.now()
	until := now.Add(time.Duration(eff.DurationMS) * time.Millisecond)
	switch eff.Type {
	case inventory.EffectHeal:
		healed := min(sess.MaxHP, sess.HP+int(eff.Value))
		if healed == sess.HP {
			return
		}
		sess.HP = healed
		s.broadcastToWorld(sess.WorldName, protocol.EvPlayerHP, protocol.PlayerHPEvent{UserID: sess.UserID, HP: sess.HP, MaxHP: sess.MaxHP}, "")
	case inventory.EffectStealth:
		sess.StealthUntil = until
	case inventory.EffectBuff:
		stat := eff.Stat
		if stat == "" {
			stat = "speed"
		}
		sess.Buffs[stat] = Buff{Value: eff.Value, Until: until}
	}
}
