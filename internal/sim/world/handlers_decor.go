package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
)

func (s *Server) scatterConfig() decor.ScatterConfig {
	l := s.tun.Loot
	return decor.ScatterConfig{
		MinRadius:     l.SpawnRadiusMin,
		MaxRadius:     l.SpawnRadiusMax,
		MinSeparation: l.MinSeparation,
		Attempts:      l.ScatterAttempts,
	}
}

func itemScale(it inventory.Item) float64 {
	var props struct {
		Scale float64 `json:"scale"`
	}
	if len(it.Properties) > 0 {
		_ = json.Unmarshal(it.Properties, &props)
	}
	if props.Scale <= 0 {
		return 1
	}
	return props.Scale
}

// announceRegenerated pushes a fresh layout to everyone in the world.
func (s *Server) announceRegenerated(w *worldState) {
	s.broadcastToWorld(w.rec.Name, protocol.EvLootRemoved, protocol.LootRemovedEvent{Key: protocol.LootRemovedAll}, "")
	s.broadcastToWorld(w.rec.Name, protocol.EvDecorRegenerated, protocol.DecorRegeneratedEvent{Decor: decorView(w.decor, w.assets)}, "")
}

func (s *Server) handleDecorRemove(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.KeyReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return nil, badRequest("key required")
	}
	sess := c.sess
	w := s.sessionWorld(sess)
	regenerated, err := s.refreshDecor(ctx, w)
	if regenerated {
		s.announceRegenerated(w)
	}
	if err != nil {
		return nil, err
	}

	slot, ok := w.decor.Slot(key)
	if !ok {
		return nil, rejected("decor not found")
	}
	if reach := s.tun.Decor.Reach; reach > 0 && horizontal(sess.Pos, mgl64.Vec3{slot.X, slot.Y, slot.Z}) > reach {
		return nil, rejected("out of reach")
	}
	if !slot.Collectable {
		return nil, rejected("decor is not collectable")
	}
	if w.decor.IsRemoved(key) {
		return nil, rejected("decor already removed")
	}

	// Drop rows and item metadata are read before the removal is persisted so
	// a storage failure leaves the slot untouched.
	rows, err := s.store.DecorDrops(ctx, slot.AssetCode)
	if err != nil {
		return nil, storageErr("load drops", err)
	}
	fallback := slot.ItemCode
	if fallback == "" {
		fallback = slot.AssetCode
	}
	drops := decor.RollDrops(s.rng, rows, fallback)
	codes := make([]string, 0, len(drops))
	for _, d := range drops {
		codes = append(codes, d.ItemCode)
	}
	items, err := s.store.Items(ctx, codes)
	if err != nil {
		return nil, storageErr("load drop items", err)
	}

	now := s.now()
	if _, err := decor.Remove(&w.decor, key, now); err != nil {
		switch {
		case errors.Is(err, decor.ErrSlotNotFound):
			return nil, rejected("decor not found")
		case errors.Is(err, decor.ErrNotCollectable):
			return nil, rejected("decor is not collectable")
		default:
			return nil, rejected("decor already removed")
		}
	}
	if err := s.store.SaveDecorState(ctx, w.rec.ID, w.decor); err != nil {
		decor.Unremove(&w.decor, key)
		return nil, storageErr("save decor", err)
	}

	var valid []decor.Drop
	for _, d := range drops {
		if it, ok := items[d.ItemCode]; ok && it.Active {
			valid = append(valid, d)
		}
	}
	positions := decor.Scatter(s.rng, mgl64.Vec3{slot.X, slot.Y, slot.Z}, len(valid), s.scatterConfig())
	spawned := make([]protocol.LootView, 0, len(valid))
	for i, d := range valid {
		it := items[d.ItemCode]
		l := &decor.Loot{
			Key:       fmt.Sprintf("loot:%d:%s", w.rec.ID, uuid.NewString()),
			ItemCode:  it.Code,
			ItemName:  it.Name,
			ModelPath: it.ModelPath,
			IconPath:  it.IconPath,
			Scale:     itemScale(it),
			Quantity:  d.Quantity,
			Pos:       positions[i],
			Source:    key,
			SpawnedAt: now,
		}
		w.loot.Add(l)
		spawned = append(spawned, lootView(l))
	}

	s.broadcastToWorld(w.rec.Name, protocol.EvDecorRemoved, protocol.DecorRemovedEvent{Key: key, By: sess.UserID}, c.conn.ID)
	if len(spawned) > 0 {
		s.broadcastToWorld(w.rec.Name, protocol.EvLootSpawned, protocol.LootSpawnedEvent{Loot: spawned}, c.conn.ID)
	}
	return protocol.DecorRemoveResp{OK: true, Key: key, Loot: spawned}, nil
}

func (s *Server) handleLootPickup(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.KeyReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	sess := c.sess
	w := s.sessionWorld(sess)
	l, ok := w.loot.Get(strings.TrimSpace(p.Key))
	if !ok {
		return nil, rejected("loot not found")
	}
	if r := s.tun.Loot.PickupRadius; r > 0 && horizontal(sess.Pos, l.Pos) > r {
		return nil, rejected("too far")
	}

	var res inventory.AddResult
	grid, err := s.store.UpdateInventory(ctx, sess.UserID, s.layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		var err error
		res, err = inventory.Add(g, cat, l.ItemCode, l.Quantity)
		return err
	})
	if errors.Is(err, inventory.ErrUnknownItem) {
		w.loot.Remove(l.Key)
		s.broadcastToWorld(w.rec.Name, protocol.EvLootRemoved, protocol.LootRemovedEvent{Key: l.Key}, "")
		return nil, rejected("item no longer exists")
	}
	if err != nil {
		return nil, inventoryErr("pickup", err)
	}
	if res.Added == 0 {
		return protocol.LootPickupResp{
			OK: false, Error: "inventory full", Code: protocol.ErrRejected,
			Key: l.Key, Left: res.Left, Inventory: s.committedView(ctx, grid),
		}, nil
	}

	// The items are committed; the ground pile must shrink with them.
	remaining, gone := w.loot.Take(l.Key, res.Added)
	if gone {
		s.broadcastToWorld(w.rec.Name, protocol.EvLootRemoved, protocol.LootRemovedEvent{Key: l.Key, By: sess.UserID}, c.conn.ID)
	} else {
		s.broadcastToWorld(w.rec.Name, protocol.EvLootUpdated, protocol.LootUpdatedEvent{Key: l.Key, Quantity: remaining}, c.conn.ID)
	}
	return protocol.LootPickupResp{OK: true, Key: l.Key, Added: res.Added, Left: res.Left, Inventory: s.committedView(ctx, grid)}, nil
}

func (s *Server) handleDecorRegenerate(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.EnterWorldReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	sess := c.sess
	if !sess.IsAdmin() {
		return nil, forbidden("admin only")
	}
	name := p.WorldName
	if name == "" && sess.InWorld {
		name = sess.WorldName
	}
	rec, err := s.resolveWorld(ctx, name)
	if err != nil {
		return nil, err
	}

	// Worlds nobody is in are regenerated from storage and not cached.
	w, cached := s.worlds[rec.ID]
	if !cached {
		if w, err = s.loadWorld(ctx, rec); err != nil {
			return nil, err
		}
		defer s.evictIfEmpty(rec.ID)
	}
	prev := w.decor
	w.decor = decor.State{}
	if _, err := s.refreshDecor(ctx, w); err != nil {
		w.decor = prev
		return nil, err
	}
	s.maintain.Forget(rec.ID)
	s.announceRegenerated(w)

	if err := s.store.LogAdminAction(ctx, AdminAction{
		ActorID: sess.UserID, Action: "decor_regenerate", Target: rec.Name,
		Detail: fmt.Sprintf("%d slots", len(w.decor.Slots)), At: s.now(),
	}); err != nil {
		s.log.Printf("admin audit: %v", err)
	}
	s.log.Printf("decor regenerated world=%s by=%s slots=%d", rec.Name, sess.Username, len(w.decor.Slots))
	return protocol.RegenerateResp{OK: true, Decor: decorView(w.decor, w.assets)}, nil
}
