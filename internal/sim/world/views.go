package world

import (
	"sort"
	"time"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
)

func userView(u User) protocol.UserView {
	return protocol.UserView{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

func characterView(c Character, role string) protocol.CharacterView {
	return protocol.CharacterView{
		ID:        c.ID,
		SlotIndex: c.SlotIndex,
		Name:      c.Name,
		ModelKey:  c.ModelKey,
		Class:     classForModel(c.ModelKey, role),
	}
}

func playerView(sess *Session, now time.Time) protocol.PlayerView {
	return protocol.PlayerView{
		UserID:        sess.UserID,
		Username:      sess.Username,
		CharacterID:   sess.CharacterID,
		CharacterName: sess.CharacterName,
		ModelKey:      sess.ModelKey,
		Class:         sess.Class,
		X:             sess.Pos.X(),
		Y:             sess.Pos.Y(),
		Z:             sess.Pos.Z(),
		Yaw:           sess.Yaw,
		Anim:          sess.Anim,
		Emotion:       sess.emotionAt(now),
		HP:            sess.HP,
		MaxHP:         sess.MaxHP,
		Dead:          sess.Dead(),
		Stealth:       sess.Stealthed(now),
	}
}

func worldView(w WorldRecord) protocol.WorldView {
	return protocol.WorldView{
		ID:           w.ID,
		Name:         w.Name,
		Seed:         w.Seed,
		ViewDistance: w.ViewDistance,
		FogEnabled:   w.FogEnabled,
		FogMode:      w.FogMode,
		FogColor:     w.FogColor,
		FogNear:      w.FogNear,
		FogFar:       w.FogFar,
		FogDensity:   w.FogDensity,
	}
}

func inventoryView(g *inventory.Grid, items map[string]inventory.Item) protocol.InventoryView {
	v := protocol.InventoryView{
		TotalSlots:  g.Layout.Total,
		HotbarSlots: g.Layout.Hotbar,
		Slots:       make([]protocol.SlotView, 0, len(g.Slots)),
		Items:       map[string]protocol.ItemView{},
	}
	for _, sl := range g.Slots {
		v.Slots = append(v.Slots, protocol.SlotView{Index: sl.Index, ItemCode: sl.ItemCode, Quantity: sl.Quantity})
		if sl.Empty() {
			continue
		}
		if it, ok := items[sl.ItemCode]; ok {
			v.Items[it.Code] = itemView(it)
		}
	}
	return v
}

func itemView(it inventory.Item) protocol.ItemView {
	return protocol.ItemView{
		Code:       it.Code,
		Name:       it.Name,
		Type:       it.Type,
		Rarity:     it.Rarity,
		MaxStack:   it.Stack(),
		IconPath:   it.IconPath,
		ModelPath:  it.ModelPath,
		Properties: it.Properties,
	}
}

func decorView(st decor.State, assets []decor.Asset) protocol.DecorView {
	v := protocol.DecorView{
		Signature: st.Config.Signature,
		Slots:     make([]protocol.DecorSlotView, 0, len(st.Slots)),
		Removed:   make([]string, 0, len(st.Removed)),
		Assets:    make([]protocol.DecorAssetView, 0, len(assets)),
	}
	for _, sl := range st.Slots {
		c := sl.Collider
		v.Slots = append(v.Slots, protocol.DecorSlotView{
			Key:         sl.Key,
			AssetCode:   sl.AssetCode,
			X:           sl.X,
			Y:           sl.Y,
			Z:           sl.Z,
			Biome:       sl.Biome,
			Scale:       sl.Scale,
			Yaw:         sl.Yaw,
			Collectable: sl.Collectable,
			Collider: protocol.ColliderView{
				Type: c.Type, Radius: c.Radius, Height: c.Height,
				HalfX: c.HalfX, HalfZ: c.HalfZ, OffsetY: c.OffsetY,
			},
		})
	}
	for k := range st.Removed {
		v.Removed = append(v.Removed, k)
	}
	sort.Strings(v.Removed)
	for _, a := range assets {
		v.Assets = append(v.Assets, protocol.DecorAssetView{Code: a.Code, Name: a.Name, ModelPath: a.ModelPath, IconPath: a.IconPath})
	}
	return v
}

func lootView(l *decor.Loot) protocol.LootView {
	return protocol.LootView{
		Key:       l.Key,
		ItemCode:  l.ItemCode,
		ItemName:  l.ItemName,
		ModelPath: l.ModelPath,
		IconPath:  l.IconPath,
		Scale:     l.Scale,
		Quantity:  l.Quantity,
		X:         l.Pos.X(),
		Y:         l.Pos.Y(),
		Z:         l.Pos.Z(),
	}
}

func lootViews(ls []*decor.Loot) []protocol.LootView {
	out := make([]protocol.LootView, 0, len(ls))
	for _, l := range ls {
		out = append(out, lootView(l))
	}
	return out
}

func (w *worldState) chunkViews() []protocol.VoxelChunkView {
	recs := w.voxels.Chunks()
	out := make([]protocol.VoxelChunkView, 0, len(recs))
	for _, r := range recs {
		cv := protocol.VoxelChunkView{CX: r.Key.CX, CZ: r.Key.CZ, Overrides: make([][4]int, 0, len(r.Overrides))}
		for _, o := range r.Overrides {
			cv.Overrides = append(cv.Overrides, [4]int{o.LX, o.Y, o.LZ, int(o.Block)})
		}
		out = append(out, cv)
	}
	return out
}

// terrainView is the sampler input a client needs to rebuild base terrain.
type terrainView struct {
	Seed   string            `json:"seed"`
	Config any               `json:"config"`
	Cells  map[string]string `json:"cells,omitempty"`
}

func (w *worldState) terrainView() terrainView {
	return terrainView{Seed: w.rec.Seed, Config: w.cfg(), Cells: w.terrain.Cells}
}
