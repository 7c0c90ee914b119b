package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"voxelrealm.ai/internal/sim/catalogs"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/voxel"
	"voxelrealm.ai/internal/sim/world"
)

func openTest(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "realm.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s, _ := openTest(t)
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	wrote, err := s.SeedCatalogs(context.Background(), cats)
	if err != nil || !wrote {
		t.Fatalf("SeedCatalogs: wrote=%v err=%v", wrote, err)
	}
	wrote, err = s.SeedCatalogs(context.Background(), cats)
	if err != nil || wrote {
		t.Fatalf("reseed with same digests: wrote=%v err=%v", wrote, err)
	}
	return s
}

func TestUsersLifecycle(t *testing.T) {
	s, _ := openTest(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, world.NewUser{Username: "Alice", FullName: "Alice A", PasswordHash: "h", PasswordSalt: "s"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, world.NewUser{Username: "alice", FullName: "x", PasswordHash: "h", PasswordSalt: "s"}); !errors.Is(err, world.ErrDuplicate) {
		t.Fatalf("case-insensitive duplicate: err=%v", err)
	}

	u, err := s.UserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if u.ID != id || u.Role != world.RolePlayer || u.LastPos != nil || u.LastCharacterID != 0 {
		t.Fatalf("user mismatch: %+v", u)
	}

	if err := s.RecordLoginFailure(ctx, id); err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	u, _ = s.UserByUsername(ctx, "alice")
	if u.FailedLogins != 1 {
		t.Fatalf("failed logins=%d", u.FailedLogins)
	}
	if err := s.RecordLogin(ctx, id, "127.0.0.1:5000", time.Now()); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if err := s.SetOffline(ctx, id, &[3]float64{1.5, 20, -3}); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	u, _ = s.UserByUsername(ctx, "alice")
	if u.FailedLogins != 0 || u.LastPos == nil || *u.LastPos != [3]float64{1.5, 20, -3} {
		t.Fatalf("after login/offline: %+v", u)
	}

	if err := s.SetRole(ctx, "alice", world.RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if err := s.SetRole(ctx, "alice", "god"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if err := s.SetBanned(ctx, "alice", true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	u, _ = s.UserByUsername(ctx, "alice")
	if u.Role != world.RoleAdmin || !u.Banned {
		t.Fatalf("role/ban: %+v", u)
	}

	if _, err := s.UserByUsername(ctx, "bob"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("missing user: err=%v", err)
	}
	if err := s.RecordLoginFailure(ctx, 999); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("missing user id: err=%v", err)
	}
}

func TestEnsureWorldKeepsSeedAndSwitchesActive(t *testing.T) {
	s, _ := openTest(t)
	ctx := context.Background()

	if _, err := s.ActiveWorld(ctx); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("empty db active world: err=%v", err)
	}
	cfg := terrain.Default()
	cfg.SurfaceHeight = 40
	a, err := s.EnsureWorld(ctx, "overworld", "seed-1", cfg)
	if err != nil {
		t.Fatalf("EnsureWorld: %v", err)
	}
	if !a.Active || a.Seed != "seed-1" || a.FogMode != "linear" || a.ViewDistance != 6 {
		t.Fatalf("world record: %+v", a)
	}
	again, err := s.EnsureWorld(ctx, "overworld", "seed-2", terrain.Default())
	if err != nil {
		t.Fatalf("EnsureWorld again: %v", err)
	}
	if again.ID != a.ID || again.Seed != "seed-1" {
		t.Fatalf("existing world changed: %+v", again)
	}
	tr, err := s.WorldTerrain(ctx, a.ID)
	if err != nil {
		t.Fatalf("WorldTerrain: %v", err)
	}
	if tr.Config.SurfaceHeight != terrain.Normalize(cfg).SurfaceHeight {
		t.Fatalf("terrain overwritten: %+v", tr.Config)
	}

	b, err := s.EnsureWorld(ctx, "nether", "seed-3", terrain.Default())
	if err != nil {
		t.Fatalf("EnsureWorld nether: %v", err)
	}
	active, err := s.ActiveWorld(ctx)
	if err != nil || active.ID != b.ID {
		t.Fatalf("active=%+v err=%v", active, err)
	}
	old, _ := s.WorldByName(ctx, "overworld")
	if old.Active {
		t.Fatalf("previous world still active")
	}
}

func TestCatalogQueries(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	items, err := s.Items(ctx, []string{"wood_log", "health_potion", "nope"})
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 || items["wood_log"].MaxStack != 64 {
		t.Fatalf("items: %+v", items)
	}
	if len(items["health_potion"].Properties) == 0 {
		t.Fatalf("potion properties lost")
	}

	assets, err := s.DecorAssets(ctx)
	if err != nil {
		t.Fatalf("DecorAssets: %v", err)
	}
	if len(assets) == 0 || assets[0].Code != "oak_tree" {
		t.Fatalf("asset order: %+v", assets)
	}
	if assets[0].Collider.Type != decor.ColliderCylinder || assets[0].Collider.Radius != 0.45 {
		t.Fatalf("collider: %+v", assets[0].Collider)
	}
	drops, err := s.DecorDrops(ctx, "oak_tree")
	if err != nil {
		t.Fatalf("DecorDrops: %v", err)
	}
	if len(drops) != 2 || drops[0].ItemCode != "wood_log" || drops[0].QtyMax != 4 {
		t.Fatalf("drops: %+v", drops)
	}
}

func TestDecorStateAndChunks(t *testing.T) {
	s, _ := openTest(t)
	ctx := context.Background()
	w, err := s.EnsureWorld(ctx, "overworld", "seed", terrain.Default())
	if err != nil {
		t.Fatalf("EnsureWorld: %v", err)
	}

	if _, err := s.DecorState(ctx, w.ID); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("absent decor state: err=%v", err)
	}
	st := decor.State{
		Config:  decor.Config{Version: 1, Seed: "seed", Signature: "sig"},
		Slots:   []decor.Slot{{Key: "oak_tree:0", AssetCode: "oak_tree", X: 1, Y: 2, Z: 3}},
		Removed: map[string]float64{"oak_tree:0": 1234},
	}
	if err := s.SaveDecorState(ctx, w.ID, st); err != nil {
		t.Fatalf("SaveDecorState: %v", err)
	}
	got, err := s.DecorState(ctx, w.ID)
	if err != nil {
		t.Fatalf("DecorState: %v", err)
	}
	if got.Config != st.Config || len(got.Slots) != 1 || !got.IsRemoved("oak_tree:0") {
		t.Fatalf("decor state: %+v", got)
	}

	key := voxel.ChunkKey{CX: -1, CZ: 2}
	ovs := []voxel.Override{{LX: 3, Y: 10, LZ: 15, Block: terrain.Stone}, {LX: 0, Y: 11, LZ: 0, Block: terrain.Air}}
	if err := s.SaveVoxelChunk(ctx, w.ID, key, ovs); err != nil {
		t.Fatalf("SaveVoxelChunk: %v", err)
	}
	recs, err := s.VoxelChunks(ctx, w.ID)
	if err != nil {
		t.Fatalf("VoxelChunks: %v", err)
	}
	if len(recs) != 1 || recs[0].Key != key || len(recs[0].Overrides) != 2 {
		t.Fatalf("chunks: %+v", recs)
	}
	if err := s.SaveVoxelChunk(ctx, w.ID, key, nil); err != nil {
		t.Fatalf("SaveVoxelChunk empty: %v", err)
	}
	recs, _ = s.VoxelChunks(ctx, w.ID)
	if len(recs) != 0 {
		t.Fatalf("empty save should delete, got %+v", recs)
	}
}

func TestUpdateInventoryCommitsOrRollsBack(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	id, err := s.CreateUser(ctx, world.NewUser{Username: "alice", FullName: "Alice", PasswordHash: "h", PasswordSalt: "s"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	layout := inventory.Layout{Total: 8, Hotbar: 4}

	g, err := s.UpdateInventory(ctx, id, layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		_, err := inventory.Add(g, cat, "wood_log", 70)
		return err
	})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if g.Slots[0].Quantity != 64 || g.Slots[1].Quantity != 6 {
		t.Fatalf("stacking: %+v", g.Slots[:2])
	}

	boom := errors.New("boom")
	_, err = s.UpdateInventory(ctx, id, layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		if err := inventory.Move(g, cat, 0, 5); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("fn error should be returned unwrapped, got %v", err)
	}
	_, err = s.UpdateInventory(ctx, id, layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		_, err := inventory.Add(g, cat, "nope", 1)
		return err
	})
	if !errors.Is(err, inventory.ErrUnknownItem) {
		t.Fatalf("unknown item: err=%v", err)
	}
	_, err = s.UpdateInventory(ctx, id, layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		g.Slots[0].Quantity = 500
		return nil
	})
	if err == nil {
		t.Fatalf("over-stacked slot should not commit")
	}

	g, err = s.Inventory(ctx, id, layout)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if g.Slots[0].ItemCode != "wood_log" || g.Slots[0].Quantity != 64 || !g.Slots[5].Empty() {
		t.Fatalf("rollback did not hold: %+v", g.Slots)
	}
}

func TestCharacterSlots(t *testing.T) {
	s, _ := openTest(t)
	ctx := context.Background()
	id, _ := s.CreateUser(ctx, world.NewUser{Username: "alice", FullName: "Alice", PasswordHash: "h", PasswordSalt: "s"})

	a, err := s.CreateCharacter(ctx, id, "Knight", "knight.glb", 2)
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	if a.SlotIndex != 0 || a.CreatedAt.IsZero() {
		t.Fatalf("first character: %+v", a)
	}
	if _, err := s.CreateCharacter(ctx, id, "knight", "mage.glb", 2); !errors.Is(err, world.ErrDuplicate) {
		t.Fatalf("duplicate name: err=%v", err)
	}
	b, err := s.CreateCharacter(ctx, id, "Mage", "mage.glb", 2)
	if err != nil || b.SlotIndex != 1 {
		t.Fatalf("second character: %+v err=%v", b, err)
	}
	if _, err := s.CreateCharacter(ctx, id, "Thief", "thief.glb", 2); !errors.Is(err, world.ErrSlotsFull) {
		t.Fatalf("slots full: err=%v", err)
	}

	if err := s.SetLastCharacter(ctx, id, a.ID); err != nil {
		t.Fatalf("SetLastCharacter: %v", err)
	}
	if err := s.DeleteCharacter(ctx, id, a.ID); err != nil {
		t.Fatalf("DeleteCharacter: %v", err)
	}
	u, _ := s.UserByUsername(ctx, "alice")
	if u.LastCharacterID != 0 {
		t.Fatalf("last character pointer not cleared: %d", u.LastCharacterID)
	}
	if err := s.DeleteCharacter(ctx, id, a.ID); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("second delete: err=%v", err)
	}

	c, err := s.CreateCharacter(ctx, id, "Thief", "thief.glb", 2)
	if err != nil || c.SlotIndex != 0 {
		t.Fatalf("freed slot reused: %+v err=%v", c, err)
	}
	list, err := s.Characters(ctx, id)
	if err != nil || len(list) != 2 || list[0].Name != "Thief" || list[1].Name != "Mage" {
		t.Fatalf("characters: %+v err=%v", list, err)
	}
}

func TestAdminActionsPersist(t *testing.T) {
	s, path := openTest(t)
	ctx := context.Background()
	if err := s.LogAdminAction(ctx, world.AdminAction{ActorID: 7, Action: "force_logout", Target: "bob"}); err != nil {
		t.Fatalf("LogAdminAction: %v", err)
	}
	got, err := s.AdminActions(ctx, 10)
	if err != nil || len(got) != 1 || got[0].Target != "bob" || got[0].At.IsZero() {
		t.Fatalf("AdminActions: %+v err=%v", got, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var action string
	if err := db.QueryRow(`SELECT action FROM admin_actions WHERE actor_id=7`).Scan(&action); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if action != "force_logout" {
		t.Fatalf("action=%q", action)
	}
}
