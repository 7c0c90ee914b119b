package world

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/fall"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/terrain"
)

func moveTo(h *harness, tc *testConn, y float64) protocol.MoveResp {
	h.t.Helper()
	sess := h.session(tc)
	var r protocol.MoveResp
	h.ok(tc, protocol.ActWorldMove, map[string]any{"x": sess.Pos.X(), "y": y, "z": sess.Pos.Z(), "yaw": 0}, &r)
	return r
}

// dropFrom walks up to top then falls to bottom and lands.
func dropFrom(h *harness, tc *testConn, top, bottom float64) protocol.MoveResp {
	h.t.Helper()
	moveTo(h, tc, top)
	moveTo(h, tc, bottom)
	return moveTo(h, tc, bottom)
}

func TestPreconditionsAreCheckedInOrder(t *testing.T) {
	h := newHarness(t)
	anon := h.connect("anon")

	h.fail(anon, protocol.ActWorldMove, map[string]any{"x": 0, "y": 0, "z": 0}, protocol.ErrNotAuthenticated)
	h.fail(anon, "fly_away", nil, protocol.ErrUnknownAction)
	var pong protocol.PongResp
	h.ok(anon, protocol.ActPing, nil, &pong)
	if pong.Version != protocol.Version {
		t.Fatalf("pong version = %q", pong.Version)
	}

	h.srv.handle(h.ctx, h.client(anon), []byte("{not json"))
	h.drain(anon)
	if len(anon.events) != 1 || (len(anon.events[0].ID) != 0 && string(anon.events[0].ID) != "null") {
		t.Fatalf("garbage frame: got %+v", anon.events)
	}
	var ep protocol.ErrorPayload
	_ = json.Unmarshal(anon.events[0].Payload, &ep)
	if ep.Code != protocol.ErrBadRequest {
		t.Fatalf("garbage frame code = %q", ep.Code)
	}
	anon.events = nil

	h.ok(anon, protocol.ActRegister, map[string]any{"username": "ann", "full_name": "Ann Tester", "password": "secret1"}, nil)
	h.ok(anon, protocol.ActLogin, map[string]any{"username": "ann", "password": "secret1"}, nil)
	h.fail(anon, protocol.ActWorldMove, map[string]any{"x": 0, "y": 0, "z": 0}, protocol.ErrNotInWorld)
	h.fail(anon, protocol.ActEnterWorld, nil, protocol.ErrRejected)

	p := h.player("dee", "")
	sess := h.session(p)
	sess.HP = 0
	sess.Fall.Kill()
	ep = h.fail(p, protocol.ActWorldMove, map[string]any{"x": 0, "y": 0, "z": 0}, protocol.ErrDead)
	if !ep.Dead {
		t.Fatalf("dead rejection should carry dead=true")
	}
	h.fail(p, protocol.ActWorldChat, map[string]any{"message": "hi"}, protocol.ErrDead)
	h.fail(p, protocol.ActWorldSetEmotion, map[string]any{"emotion": "sad"}, protocol.ErrDead)
	h.ok(p, protocol.ActInventoryGet, nil, nil)
}

func TestRegisterAndLoginRules(t *testing.T) {
	h := newHarness(t)
	tc := h.connect("c1")
	h.fail(tc, protocol.ActRegister, map[string]any{"username": "ab", "full_name": "Abe Tester", "password": "secret1"}, protocol.ErrBadRequest)
	h.fail(tc, protocol.ActRegister, map[string]any{"username": "abe", "full_name": "Abe Tester", "password": "123"}, protocol.ErrBadRequest)
	h.ok(tc, protocol.ActRegister, map[string]any{"username": "abe", "full_name": "Abe Tester", "password": "secret1"}, nil)
	h.fail(tc, protocol.ActRegister, map[string]any{"username": "ABE", "full_name": "Abe Tester", "password": "secret1"}, protocol.ErrConflict)

	h.fail(tc, protocol.ActLogin, map[string]any{"username": "abe", "password": "wrongpw"}, protocol.ErrRejected)
	u, _ := h.store.UserByUsername(h.ctx, "abe")
	if u.FailedLogins != 1 {
		t.Fatalf("failed logins = %d, want 1", u.FailedLogins)
	}
	h.store.users[u.ID].Banned = true
	ep := h.fail(tc, protocol.ActLogin, map[string]any{"username": "abe", "password": "secret1"}, protocol.ErrRejected)
	if ep.Error != "account banned" {
		t.Fatalf("banned error = %q", ep.Error)
	}
	h.store.users[u.ID].Banned = false

	var lr protocol.LoginResp
	h.ok(tc, protocol.ActLogin, map[string]any{"username": "abe", "password": "secret1"}, &lr)
	if lr.User.Username != "abe" || lr.User.Role != RolePlayer {
		t.Fatalf("login user = %+v", lr.User)
	}
	if h.store.users[u.ID].FailedLogins != 0 {
		t.Fatalf("successful login should reset failures")
	}

	// A second connection for the same user replaces the first.
	tc2 := h.connect("c2")
	h.ok(tc2, protocol.ActLogin, map[string]any{"username": "abe", "password": "secret1"}, nil)
	h.drain(tc)
	if len(tc.take(protocol.EvKicked)) != 1 || len(tc.closed) != 1 || tc.closed[0] != CloseKicked {
		t.Fatalf("old connection should be kicked, closed=%v", tc.closed)
	}
	if _, ok := h.srv.clients["c1"]; ok {
		t.Fatalf("old connection still registered")
	}
}

func TestCharacterRules(t *testing.T) {
	h := newHarness(t)
	tc := h.connect("c1")
	h.ok(tc, protocol.ActRegister, map[string]any{"username": "cat", "full_name": "Cat Tester", "password": "secret1"}, nil)
	h.ok(tc, protocol.ActLogin, map[string]any{"username": "cat", "password": "secret1"}, nil)

	h.fail(tc, protocol.ActCharacterCreate, map[string]any{"name": "Mo", "model_key": "a.glb"}, protocol.ErrBadRequest)
	h.fail(tc, protocol.ActCharacterCreate, map[string]any{"name": "Morgan", "model_key": "a.fbx"}, protocol.ErrBadRequest)

	var first protocol.CharacterResp
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": "Morgan", "model_key": "chars/wizard.gltf"}, &first)
	if first.Character.Class != ClassMage || first.Character.SlotIndex != 0 {
		t.Fatalf("character = %+v", first.Character)
	}
	h.fail(tc, protocol.ActCharacterCreate, map[string]any{"name": "morgan", "model_key": "x.obj"}, protocol.ErrConflict)
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": "Second", "model_key": "x.obj"}, nil)
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": "Third", "model_key": "x.obj"}, nil)
	h.fail(tc, protocol.ActCharacterCreate, map[string]any{"name": "Fourth", "model_key": "x.obj"}, protocol.ErrRejected)

	var list protocol.CharacterListResp
	h.ok(tc, protocol.ActCharacterList, nil, &list)
	if len(list.Characters) != 3 || list.MaxSlots != 3 {
		t.Fatalf("list = %+v", list)
	}

	h.ok(tc, protocol.ActCharacterSelect, map[string]any{"character_id": first.Character.ID}, nil)
	if h.session(tc).Class != ClassMage {
		t.Fatalf("class after select = %q", h.session(tc).Class)
	}
	h.ok(tc, protocol.ActEnterWorld, nil, nil)
	h.fail(tc, protocol.ActCharacterDelete, map[string]any{"character_id": first.Character.ID}, protocol.ErrRejected)
	h.fail(tc, protocol.ActCharacterDelete, map[string]any{"character_id": 999}, protocol.ErrRejected)
	h.ok(tc, protocol.ActCharacterDelete, map[string]any{"character_id": list.Characters[2].ID}, nil)
}

func TestEnterWorldPayload(t *testing.T) {
	h := newHarness(t)
	bob := h.player("bob", "")
	tc := h.connect("c-al")
	h.ok(tc, protocol.ActRegister, map[string]any{"username": "alf", "full_name": "Al Tester", "password": "secret1"}, nil)
	h.ok(tc, protocol.ActLogin, map[string]any{"username": "alf", "password": "secret1"}, nil)
	var cr protocol.CharacterResp
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": "Alto", "model_key": "m.glb"}, &cr)
	h.ok(tc, protocol.ActCharacterSelect, map[string]any{"character_id": cr.Character.ID}, nil)

	var r protocol.EnterWorldResp
	h.ok(tc, protocol.ActEnterWorld, nil, &r)
	if r.World.Name != "overworld" || len(r.Players) != 1 || r.Players[0].Username != "bob" {
		t.Fatalf("enter world = %+v", r)
	}
	if len(r.Decor.Slots) != 4 || r.Decor.Signature == "" {
		t.Fatalf("decor slots = %d sig=%q", len(r.Decor.Slots), r.Decor.Signature)
	}
	if r.Player.HP != 1000 || r.Player.Dead {
		t.Fatalf("player = %+v", r.Player)
	}
	if len(r.Inventory.Slots) != 32 || r.Inventory.HotbarSlots != 8 {
		t.Fatalf("inventory layout = %d/%d", len(r.Inventory.Slots), r.Inventory.HotbarSlots)
	}
	w := h.srv.worlds[1]
	x, z := int(math.Floor(r.Player.X)), int(math.Floor(r.Player.Z))
	top, ok := w.voxels.TopSolid(x, z)
	if !ok || r.Player.Y != float64(top+1) {
		t.Fatalf("spawn y = %v, top = %d", r.Player.Y, top)
	}

	h.drain(bob)
	if len(bob.take(protocol.EvPlayerJoined)) != 1 || len(bob.take(protocol.EvUserOnline)) != 1 {
		t.Fatalf("bob should see al come online and join")
	}
}

func TestFallOfTwentyVoxels(t *testing.T) {
	h := newHarness(t)
	tc := h.player("fay", "")
	bob := h.player("bob", "")
	h.advance(4 * time.Second)

	r := dropFrom(h, tc, 100, 80)
	if r.Damage != 250 || r.HP != 750 || r.Dead {
		t.Fatalf("20-voxel fall: %+v", r)
	}
	if r.Distance != 20 {
		t.Fatalf("fall distance = %v", r.Distance)
	}
	h.drain(bob)
	hp := bob.take(protocol.EvPlayerHP)
	if len(hp) != 1 {
		t.Fatalf("bob saw %d hp events", len(hp))
	}
	var ev protocol.PlayerHPEvent
	_ = json.Unmarshal(hp[0].Payload, &ev)
	if ev.HP != 750 || ev.Reason != fall.ReasonFall {
		t.Fatalf("hp event = %+v", ev)
	}
}

func TestRepeatedFallsKillAndRespawn(t *testing.T) {
	h := newHarness(t)
	tc := h.player("rex", "")
	h.advance(4 * time.Second)

	// 25 voxels over a threshold of 10: ratio 2.5, 15*2.5-5 = 32.5% of 1000.
	// That is 325 exactly; the often quoted 326 only appears when rounding up.
	for i, want := range []int{675, 350, 25} {
		r := dropFrom(h, tc, 125, 100)
		if r.Damage != 325 || r.HP != want {
			t.Fatalf("fall %d: %+v", i+1, r)
		}
	}
	r := dropFrom(h, tc, 125, 100)
	if !r.Dead || r.HP != 0 || r.Reason != fall.ReasonFall {
		t.Fatalf("fourth fall should kill: %+v", r)
	}
	if len(tc.take(protocol.EvPlayerDied)) != 1 {
		t.Fatalf("missing death event")
	}
	h.fail(tc, protocol.ActWorldMove, map[string]any{"x": 0, "y": 100, "z": 0}, protocol.ErrDead)

	var rr protocol.RespawnResp
	h.ok(tc, protocol.ActWorldRespawn, nil, &rr)
	if rr.Player.HP != 1000 || rr.Player.Dead {
		t.Fatalf("respawn = %+v", rr.Player)
	}
	h.fail(tc, protocol.ActWorldRespawn, nil, protocol.ErrRejected)

	// Spawn protection swallows an immediate drop.
	if r := dropFrom(h, tc, 150, 100); r.Damage != 0 {
		t.Fatalf("protected fall damaged: %+v", r)
	}
}

func TestFallBelowThresholdIsHarmless(t *testing.T) {
	h := newHarness(t)
	tc := h.player("sam", "")
	h.advance(4 * time.Second)
	if r := dropFrom(h, tc, 100, 91); r.Damage != 0 || r.HP != 1000 {
		t.Fatalf("9-voxel fall: %+v", r)
	}
}

func TestVoidFloorKills(t *testing.T) {
	h := newHarness(t)
	tc := h.player("val", "")
	h.advance(4 * time.Second)
	moveTo(h, tc, 80)
	r := moveTo(h, tc, -70)
	if !r.Dead || r.Reason != fall.ReasonVoid {
		t.Fatalf("void: %+v", r)
	}
}

func TestMoveValidation(t *testing.T) {
	h := newHarness(t)
	tc := h.player("max", "")
	sess := h.session(tc)
	h.fail(tc, protocol.ActWorldMove, map[string]any{"x": sess.Pos.X() + 40, "y": sess.Pos.Y(), "z": sess.Pos.Z()}, protocol.ErrRejected)
	var r protocol.MoveResp
	h.ok(tc, protocol.ActWorldMove, map[string]any{"x": sess.Pos.X() + 1, "y": sess.Pos.Y(), "z": sess.Pos.Z(), "animation_state": "dance"}, &r)
	if sess.Anim != AnimIdle {
		t.Fatalf("unknown animation should fall back to idle, got %q", sess.Anim)
	}
}

func TestDisconnectCleanup(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	bob := h.player("bob", "")
	h.drain(al)
	al.events = nil

	h.srv.dropClient(h.ctx, h.client(bob), "closed")
	h.drain(al)
	if len(al.take(protocol.EvPlayerLeft)) != 1 || len(al.take(protocol.EvUserOffline)) != 1 {
		t.Fatalf("al should see bob leave and go offline")
	}
	u, _ := h.store.UserByUsername(h.ctx, "bob")
	if h.store.online[u.ID] || u.LastPos == nil {
		t.Fatalf("bob offline state not persisted: online=%v pos=%v", h.store.online[u.ID], u.LastPos)
	}
	if _, ok := h.srv.worlds[1]; !ok {
		t.Fatalf("world evicted while al is still in it")
	}

	h.ok(al, protocol.ActLogout, nil, nil)
	if _, ok := h.srv.worlds[1]; ok {
		t.Fatalf("world cache should be evicted once empty")
	}
	h.fail(al, protocol.ActInventoryGet, nil, protocol.ErrNotAuthenticated)
}

func TestFullQueueDropsConnection(t *testing.T) {
	h := newHarness(t)
	var closed []int
	h.srv.clients["tiny"] = &client{conn: Conn{
		ID:    "tiny",
		Out:   make(chan []byte),
		Close: func(code int, reason string) { closed = append(closed, code) },
	}}
	h.srv.handle(h.ctx, h.srv.clients["tiny"], []byte(`{"id":1,"action":"ping"}`))
	h.srv.reap(h.ctx)
	if _, ok := h.srv.clients["tiny"]; ok {
		t.Fatalf("connection with a full queue should be reaped")
	}
	if len(closed) != 1 || closed[0] != CloseQueueFull {
		t.Fatalf("closed = %v", closed)
	}
}

func TestBlockEditsPersistAndRollBack(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	bob := h.player("bob", "")
	sess := h.session(al)
	w := h.srv.worlds[1]
	x, z := int(math.Floor(sess.Pos.X())), int(math.Floor(sess.Pos.Z()))
	top, _ := w.voxels.TopSolid(x, z)

	var br protocol.BlockResp
	h.ok(al, protocol.ActWorldBlockBreak, map[string]any{"x": x, "y": top, "z": z}, &br)
	if len(br.Changes) != 1 || br.Changes[0].BlockID != terrain.Air {
		t.Fatalf("break = %+v", br)
	}
	if got := w.voxels.EffectiveBlock(x, top, z); got != terrain.Air {
		t.Fatalf("block after break = %d", got)
	}
	key := w.voxels.ChunkKeys()[0]
	if len(h.store.chunks[1][key]) != 1 {
		t.Fatalf("chunk not persisted: %+v", h.store.chunks[1])
	}
	h.drain(bob)
	if len(bob.take(protocol.EvBlockChanged)) != 1 {
		t.Fatalf("bob should see the block change")
	}

	h.fail(al, protocol.ActWorldBlockBreak, map[string]any{"x": x, "y": top, "z": z}, protocol.ErrRejected)
	h.fail(al, protocol.ActWorldBlockPlace, map[string]any{"x": x, "y": top + 1, "z": z, "block_id": terrain.Stone}, protocol.ErrRejected)
	h.fail(al, protocol.ActWorldBlockPlace, map[string]any{"x": x + 40, "y": top, "z": z, "block_id": terrain.Stone}, protocol.ErrRejected)
	h.fail(al, protocol.ActWorldBlockPlace, map[string]any{"x": x, "y": 999, "z": z, "block_id": terrain.Stone}, protocol.ErrBadRequest)

	h.store.failSave = true
	h.fail(al, protocol.ActWorldBlockPlace, map[string]any{"x": x, "y": top, "z": z, "block_id": terrain.Stone}, protocol.ErrStorage)
	if got := w.voxels.EffectiveBlock(x, top, z); got != terrain.Air {
		t.Fatalf("failed place should roll back, got %d", got)
	}
	h.store.failSave = false

	// Placing the base block back removes the override entirely.
	base := w.sampler.BaseBlock(x, top, z)
	h.ok(al, protocol.ActWorldBlockPlace, map[string]any{"x": x, "y": top, "z": z, "block_id": base}, nil)
	if w.voxels.Len() != 0 || len(h.store.chunks[1]) != 0 {
		t.Fatalf("override should collapse to base: mem=%d store=%d", w.voxels.Len(), len(h.store.chunks[1]))
	}
}

func TestBlockBatchIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	sess := h.session(al)
	w := h.srv.worlds[1]
	x, z := int(math.Floor(sess.Pos.X())), int(math.Floor(sess.Pos.Z()))
	top, _ := w.voxels.TopSolid(x, z)
	next, _ := w.voxels.TopSolid(x+1, z)
	y := max(top, next) + 2

	ops := []map[string]any{
		{"op": "break", "x": x + 1, "y": y, "z": z},
		{"op": "place", "x": x + 1, "y": y, "z": z, "block_id": terrain.Brick},
	}
	ep := h.fail(al, protocol.ActWorldBlockBatch, map[string]any{"ops": ops}, protocol.ErrRejected)
	if ep.Error != "op 0: no block there" {
		t.Fatalf("batch error = %q", ep.Error)
	}
	if w.voxels.Len() != 0 {
		t.Fatalf("failed batch left %d overrides", w.voxels.Len())
	}

	ops = []map[string]any{
		{"op": "place", "x": x + 1, "y": y, "z": z, "block_id": terrain.Brick},
		{"op": "break", "x": x + 1, "y": y, "z": z},
		{"op": "place", "x": x + 1, "y": y + 1, "z": z, "block_id": terrain.Glass},
	}
	var br protocol.BlockResp
	h.ok(al, protocol.ActWorldBlockBatch, map[string]any{"ops": ops}, &br)
	if len(br.Changes) != 3 || w.voxels.Len() != 1 {
		t.Fatalf("batch changes=%d overrides=%d", len(br.Changes), w.voxels.Len())
	}
	if w.voxels.EffectiveBlock(x+1, y+1, z) != terrain.Glass {
		t.Fatalf("glass not placed")
	}
}

func TestDecorRemovalSpawnsLootAndRespawns(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	bob := h.player("bob", "")
	sess := h.session(al)
	w := h.srv.worlds[1]
	slot := w.decor.Slots[0]

	h.fail(al, protocol.ActWorldDecorRemove, map[string]any{"key": "nope:0,0"}, protocol.ErrRejected)
	sess.Pos = mgl64.Vec3{slot.X + 20, slot.Y, slot.Z}
	h.fail(al, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, protocol.ErrRejected)

	sess.Pos = mgl64.Vec3{slot.X + 1, slot.Y, slot.Z}
	var dr protocol.DecorRemoveResp
	h.ok(al, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, &dr)
	if len(dr.Loot) != 1 || dr.Loot[0].ItemCode != "wood_log" || dr.Loot[0].Quantity != 2 {
		t.Fatalf("loot = %+v", dr.Loot)
	}
	if persisted := h.store.decor[1]; !persisted.IsRemoved(slot.Key) {
		t.Fatalf("removal not persisted")
	}
	ep := h.fail(al, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, protocol.ErrRejected)
	if ep.Error != "decor already removed" {
		t.Fatalf("second removal error = %q", ep.Error)
	}
	h.drain(bob)
	if len(bob.take(protocol.EvDecorRemoved)) != 1 || len(bob.take(protocol.EvLootSpawned)) != 1 {
		t.Fatalf("bob should see the removal and the loot")
	}

	loot := dr.Loot[0]
	sess.Pos = mgl64.Vec3{loot.X + 3, loot.Y, loot.Z}
	h.fail(al, protocol.ActWorldLootPickup, map[string]any{"key": loot.Key}, protocol.ErrRejected)
	sess.Pos = mgl64.Vec3{loot.X, loot.Y, loot.Z}
	var pr protocol.LootPickupResp
	h.ok(al, protocol.ActWorldLootPickup, map[string]any{"key": loot.Key}, &pr)
	if pr.Added != 2 || pr.Left != 0 {
		t.Fatalf("pickup = %+v", pr)
	}
	if s0 := pr.Inventory.Slots[0]; s0.ItemCode != "wood_log" || s0.Quantity != 2 {
		t.Fatalf("slot 0 = %+v", s0)
	}
	if w.loot.Len() != 0 {
		t.Fatalf("loot should be gone")
	}
	h.drain(bob)
	if len(bob.take(protocol.EvLootRemoved)) != 1 {
		t.Fatalf("bob should see the loot removed")
	}

	h.advance(10 * time.Second)
	h.srv.maintainAll(h.ctx)
	if !w.decor.IsRemoved(slot.Key) {
		t.Fatalf("slot respawned too early")
	}
	h.advance(25 * time.Second)
	h.srv.maintainAll(h.ctx)
	if w.decor.IsRemoved(slot.Key) {
		t.Fatalf("slot should respawn after 30s")
	}
	h.drain(bob)
	ev := bob.take(protocol.EvDecorRespawned)
	if len(ev) != 1 {
		t.Fatalf("bob saw %d respawn events", len(ev))
	}
}

func TestLootPickupWithFullInventory(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	sess := h.session(al)
	w := h.srv.worlds[1]
	slot := w.decor.Slots[0]
	sess.Pos = mgl64.Vec3{slot.X, slot.Y, slot.Z}
	var dr protocol.DecorRemoveResp
	h.ok(al, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, &dr)

	g := inventory.NewGrid(inventory.DefaultLayout())
	for i := range g.Slots {
		g.Slots[i] = inventory.Slot{Index: i, ItemCode: "health_potion", Quantity: 16}
	}
	h.store.grids[sess.UserID] = g

	loot := dr.Loot[0]
	sess.Pos = mgl64.Vec3{loot.X, loot.Y, loot.Z}
	raw := h.call(al, protocol.ActWorldLootPickup, map[string]any{"key": loot.Key})
	var pr protocol.LootPickupResp
	_ = json.Unmarshal(raw, &pr)
	if pr.OK || pr.Error != "inventory full" || len(pr.Inventory.Slots) != 32 {
		t.Fatalf("full pickup = %s", raw)
	}
	if l, ok := w.loot.Get(loot.Key); !ok || l.Quantity != 2 {
		t.Fatalf("loot should stay on the ground")
	}
}

func TestLootPickupSurvivesItemLookupFailure(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	bob := h.player("bob", "")
	sess := h.session(al)
	w := h.srv.worlds[1]
	slot := w.decor.Slots[0]
	sess.Pos = mgl64.Vec3{slot.X, slot.Y, slot.Z}
	var dr protocol.DecorRemoveResp
	h.ok(al, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, &dr)
	loot := dr.Loot[0]
	sess.Pos = mgl64.Vec3{loot.X, loot.Y, loot.Z}
	h.drain(bob)
	bob.events = nil

	// The grid commits, then describing it fails.
	h.store.failItems = true
	var pr protocol.LootPickupResp
	h.ok(al, protocol.ActWorldLootPickup, map[string]any{"key": loot.Key}, &pr)
	if pr.Added != 2 || pr.Inventory.Slots[0].ItemCode != "wood_log" || len(pr.Inventory.Items) != 0 {
		t.Fatalf("pickup = %+v", pr)
	}
	if w.loot.Len() != 0 {
		t.Fatalf("committed loot must leave the ground")
	}
	h.drain(bob)
	if len(bob.take(protocol.EvLootRemoved)) != 1 {
		t.Fatalf("bob should see the loot removed")
	}
	h.store.failItems = false
	h.fail(al, protocol.ActWorldLootPickup, map[string]any{"key": loot.Key}, protocol.ErrRejected)
	if s0 := h.store.grids[sess.UserID].Slots[0]; s0.Quantity != 2 {
		t.Fatalf("loot duplicated: slot 0 = %+v", s0)
	}
}

func TestInventoryUseAppliesEffectWhenViewFails(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	sess := h.session(al)
	g := inventory.NewGrid(inventory.DefaultLayout())
	g.Slots[0] = inventory.Slot{Index: 0, ItemCode: "health_potion", Quantity: 2}
	h.store.grids[sess.UserID] = g
	sess.HP = 500

	h.store.failItems = true
	var ur protocol.InventoryUseResp
	h.ok(al, protocol.ActInventoryUse, map[string]any{"slot": 0}, &ur)
	if sess.HP != 700 || ur.HP != 700 {
		t.Fatalf("hp = %d (resp %d), want 700", sess.HP, ur.HP)
	}
	if q := h.store.grids[sess.UserID].Slots[0].Quantity; q != 1 || ur.Inventory.Slots[0].Quantity != 1 {
		t.Fatalf("potion quantity = %d", q)
	}
}

func TestEnterWorldFailureDoesNotPinWorld(t *testing.T) {
	h := newHarness(t)
	tc := h.connect("c1")
	h.ok(tc, protocol.ActRegister, map[string]any{"username": "eve", "full_name": "Eve Tester", "password": "secret1"}, nil)
	h.ok(tc, protocol.ActLogin, map[string]any{"username": "eve", "password": "secret1"}, nil)
	var cr protocol.CharacterResp
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": "eve_hero", "model_key": "models/knight.glb"}, &cr)
	h.ok(tc, protocol.ActCharacterSelect, map[string]any{"character_id": cr.Character.ID}, nil)

	h.store.failInventory = true
	h.fail(tc, protocol.ActEnterWorld, map[string]any{}, protocol.ErrStorage)
	if _, ok := h.srv.worlds[1]; ok {
		t.Fatalf("world with no players should not stay cached after a failed enter")
	}
	h.store.failInventory = false
	h.store.failItems = true
	h.fail(tc, protocol.ActEnterWorld, map[string]any{}, protocol.ErrStorage)
	if _, ok := h.srv.worlds[1]; ok {
		t.Fatalf("world cached after item lookup failure")
	}
	if h.session(tc).InWorld {
		t.Fatalf("session should stay out of the world")
	}

	h.store.failItems = false
	h.ok(tc, protocol.ActEnterWorld, map[string]any{}, nil)
	if _, ok := h.srv.worlds[1]; !ok {
		t.Fatalf("world should be cached once entered")
	}
}

func TestInventoryOperations(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	sess := h.session(al)
	g := inventory.NewGrid(inventory.DefaultLayout())
	g.Slots[10] = inventory.Slot{Index: 10, ItemCode: "health_potion", Quantity: 3}
	g.Slots[12] = inventory.Slot{Index: 12, ItemCode: "wood_log", Quantity: 10}
	h.store.grids[sess.UserID] = g

	var ir protocol.InventoryResp
	h.ok(al, protocol.ActInventoryShiftClick, map[string]any{"slot": 10}, &ir)
	if s := ir.Inventory.Slots[0]; s.ItemCode != "health_potion" || s.Quantity != 3 {
		t.Fatalf("shift click slot 0 = %+v", s)
	}
	h.ok(al, protocol.ActInventorySplit, map[string]any{"src": 12, "dst": 13}, &ir)
	if ir.Inventory.Slots[12].Quantity != 5 || ir.Inventory.Slots[13].Quantity != 5 {
		t.Fatalf("split = %+v %+v", ir.Inventory.Slots[12], ir.Inventory.Slots[13])
	}
	h.ok(al, protocol.ActInventoryMove, map[string]any{"src": 13, "dst": 12}, &ir)
	if ir.Inventory.Slots[12].Quantity != 10 || ir.Inventory.Slots[13].Quantity != 0 {
		t.Fatalf("merge = %+v", ir.Inventory.Slots[12])
	}
	h.fail(al, protocol.ActInventoryMove, map[string]any{"src": 12, "dst": 40}, protocol.ErrBadRequest)
	h.fail(al, protocol.ActInventoryUse, map[string]any{"slot": 12}, protocol.ErrRejected)

	sess.HP = 500
	var ur protocol.InventoryUseResp
	h.ok(al, protocol.ActInventoryUse, map[string]any{"slot": 0}, &ur)
	if ur.HP != 700 || ur.Effect.Type != inventory.EffectHeal || ur.Inventory.Slots[0].Quantity != 2 {
		t.Fatalf("use = %+v", ur)
	}
	if _, ok := ur.Inventory.Items["health_potion"]; !ok {
		t.Fatalf("inventory view should describe held items")
	}

	h.store.failSave = true
	h.fail(al, protocol.ActInventoryMove, map[string]any{"src": 0, "dst": 1}, protocol.ErrStorage)
}

func TestChatAndGiveCommand(t *testing.T) {
	h := newHarness(t)
	root := h.player("root", RoleAdmin)
	bob := h.player("bob", "")
	h.drain(root)
	root.events = nil

	var cr protocol.ChatResp
	h.ok(bob, protocol.ActWorldChat, map[string]any{"message": "  hello there  "}, &cr)
	if cr.Message != "hello there" {
		t.Fatalf("chat = %+v", cr)
	}
	h.drain(root)
	if len(root.take(protocol.EvChatMessage)) != 1 {
		t.Fatalf("root should see bob's chat")
	}
	h.fail(bob, protocol.ActWorldChat, map[string]any{"message": "/give bob wood_log 5"}, protocol.ErrNoPermission)

	h.ok(root, protocol.ActWorldChat, map[string]any{"message": "/give bob wood_log 5"}, &cr)
	if cr.Command != "give" || cr.Target != "bob" || cr.Added != 5 {
		t.Fatalf("give = %+v", cr)
	}
	h.drain(bob)
	if len(bob.take(protocol.EvInventoryUpdated)) != 1 {
		t.Fatalf("bob should get an inventory update")
	}
	u, _ := h.store.UserByUsername(h.ctx, "bob")
	if s := h.store.grids[u.ID].Slots[0]; s.ItemCode != "wood_log" || s.Quantity != 5 {
		t.Fatalf("bob slot 0 = %+v", s)
	}
	h.fail(root, protocol.ActWorldChat, map[string]any{"message": "/give bob moon_rock"}, protocol.ErrRejected)
	h.fail(root, protocol.ActWorldChat, map[string]any{"message": "/give nobody wood_log"}, protocol.ErrRejected)
	h.fail(root, protocol.ActWorldChat, map[string]any{"message": "/dance"}, protocol.ErrBadRequest)
	if len(h.store.actions) == 0 || h.store.actions[0].Action != "give" {
		t.Fatalf("give should be audited: %+v", h.store.actions)
	}
}

func TestChatRateLimit(t *testing.T) {
	h := newHarness(t)
	bob := h.player("bob", "")
	for i := 0; i < 5; i++ {
		h.ok(bob, protocol.ActWorldChat, map[string]any{"message": "spam"}, nil)
	}
	h.fail(bob, protocol.ActWorldChat, map[string]any{"message": "spam"}, protocol.ErrRateLimit)
	h.advance(time.Second)
	h.ok(bob, protocol.ActWorldChat, map[string]any{"message": "again"}, nil)
}

func TestEmotionAndClass(t *testing.T) {
	h := newHarness(t)
	al := h.player("alf", "")
	bob := h.player("bob", "")
	var er protocol.EmotionResp
	h.ok(al, protocol.ActWorldSetEmotion, map[string]any{"emotion": "Happy", "duration_ms": 50000}, &er)
	if er.Emotion != "happy" || er.DurationMS != 10000 {
		t.Fatalf("emotion = %+v", er)
	}
	h.fail(al, protocol.ActWorldSetEmotion, map[string]any{"emotion": "smug"}, protocol.ErrBadRequest)
	h.advance(11 * time.Second)
	if got := playerView(h.session(al), h.now).Emotion; got != EmotionNeutral {
		t.Fatalf("emotion should expire, got %q", got)
	}

	h.ok(al, protocol.ActWorldSetClass, map[string]any{"class": "healer"}, nil)
	h.fail(al, protocol.ActWorldSetClass, map[string]any{"class": "bard"}, protocol.ErrBadRequest)
	h.drain(bob)
	if len(bob.take(protocol.EvPlayerClassChanged)) != 1 || len(bob.take(protocol.EvPlayerEmotion)) != 1 {
		t.Fatalf("bob should see emotion and class changes")
	}
}

func TestDecorRegenerateIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	root := h.player("root", RoleAdmin)
	bob := h.player("bob", "")
	w := h.srv.worlds[1]
	slot := w.decor.Slots[0]
	h.session(bob).Pos = mgl64.Vec3{slot.X, slot.Y, slot.Z}
	h.ok(bob, protocol.ActWorldDecorRemove, map[string]any{"key": slot.Key}, nil)

	h.fail(bob, protocol.ActDecorWorldRegenerate, nil, protocol.ErrNoPermission)
	var rr protocol.RegenerateResp
	h.ok(root, protocol.ActDecorWorldRegenerate, nil, &rr)
	if len(rr.Decor.Slots) != 4 || len(rr.Decor.Removed) != 0 || w.loot.Len() != 0 {
		t.Fatalf("regenerate = %+v loot=%d", rr.Decor, w.loot.Len())
	}
	h.drain(bob)
	cleared := bob.take(protocol.EvLootRemoved)
	if len(bob.take(protocol.EvDecorRegenerated)) != 1 || len(cleared) != 1 {
		t.Fatalf("bob should see the regeneration")
	}
	var lr protocol.LootRemovedEvent
	_ = json.Unmarshal(cleared[0].Payload, &lr)
	if lr.Key != protocol.LootRemovedAll {
		t.Fatalf("loot removed key = %q", lr.Key)
	}
}

func TestForceLogoutThroughLoop(t *testing.T) {
	st := newMemStore()
	st.worlds = []WorldRecord{{ID: 1, Name: "overworld", Seed: "s", Active: true}}
	srv := New(st, Config{Tuning: testTuning(), Credentials: plainCreds{}, Logger: log.New(io.Discard, "", 0)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	out := make(chan []byte, 64)
	closed := make(chan int, 1)
	if err := srv.Connect(ctx, Conn{ID: "c1", Out: out, Close: func(code int, reason string) { closed <- code }}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.Inbox() <- Inbound{ConnID: "c1", Raw: []byte(`{"id":1,"action":"register","payload":{"username":"carol","full_name":"Carol Tester","password":"secret1"}}`)}
	srv.Inbox() <- Inbound{ConnID: "c1", Raw: []byte(`{"id":2,"action":"login","payload":{"username":"carol","password":"secret1"}}`)}

	next := func() frame {
		select {
		case b := <-out:
			var f frame
			_ = json.Unmarshal(b, &f)
			return f
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for a frame")
		}
		return frame{}
	}
	if f := next(); f.Action != protocol.ActRegister {
		t.Fatalf("first frame = %+v", f)
	}
	if f := next(); f.Action != protocol.ActLogin {
		t.Fatalf("second frame = %+v", f)
	}

	ok, err := srv.ForceLogout(ctx, "Carol")
	if err != nil || !ok {
		t.Fatalf("force logout = %v, %v", ok, err)
	}
	if f := next(); f.Action != protocol.EvKicked {
		t.Fatalf("expected kicked event, got %+v", f)
	}
	select {
	case code := <-closed:
		if code != CloseKicked {
			t.Fatalf("close code = %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("connection was not closed")
	}
	if ok, _ := srv.ForceLogout(ctx, "carol"); ok {
		t.Fatalf("second force logout should find nobody")
	}
	snap, err := srv.State(ctx)
	if err != nil || snap.Connections != 0 || len(snap.Sessions) != 0 {
		t.Fatalf("state = %+v, %v", snap, err)
	}
	if len(st.actions) != 1 || st.actions[0].Target != "Carol" {
		t.Fatalf("force logout audit = %+v", st.actions)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("run = %v", err)
	}
}

func TestConnectIsAcknowledgedBeforeFrames(t *testing.T) {
	st := newMemStore()
	st.worlds = []WorldRecord{{ID: 1, Name: "overworld", Seed: "s", Active: true}}
	srv := New(st, Config{Tuning: testTuning(), Credentials: plainCreds{}, Logger: log.New(io.Discard, "", 0)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Fill the inbox so the loop has work queued ahead of each connect.
	busy := make(chan []byte, 256)
	if err := srv.Connect(ctx, Conn{ID: "busy", Out: busy, Close: func(int, string) {}}); err != nil {
		t.Fatalf("connect busy: %v", err)
	}
	for i := 0; i < 50; i++ {
		srv.Inbox() <- Inbound{ConnID: "busy", Raw: []byte(`{"id":1,"action":"ping"}`)}
	}

	for i := 0; i < 20; i++ {
		id := "c" + string(rune('a'+i))
		out := make(chan []byte, 4)
		if err := srv.Connect(ctx, Conn{ID: id, Out: out, Close: func(int, string) {}}); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
		srv.Inbox() <- Inbound{ConnID: id, Raw: []byte(`{"id":7,"action":"ping"}`)}
		select {
		case b := <-out:
			var f frame
			_ = json.Unmarshal(b, &f)
			if f.Action != protocol.ActPing || string(f.ID) != "7" {
				t.Fatalf("%s first frame = %s", id, b)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: first frame was dropped", id)
		}
		srv.Disconnect() <- id
	}
	srv.Disconnect() <- "busy"

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := srv.State(ctx)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if snap.Connections == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connections left behind: %d", snap.Connections)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("run = %v", err)
	}
}

func TestErrorPayloadCodes(t *testing.T) {
	ep, logIt := errorPayload(rejected("too far"))
	if ep.Code != protocol.ErrRejected || ep.Error != "too far" || logIt {
		t.Fatalf("rejected = %+v log=%v", ep, logIt)
	}
	ep, logIt = errorPayload(&actionError{code: "E_MADE_UP", msg: "odd"})
	if ep.Code != protocol.ErrInternal || !logIt {
		t.Fatalf("unlisted code should become internal: %+v", ep)
	}
	ep, _ = errorPayload(io.EOF)
	if ep.Code != protocol.ErrInternal || ep.Error != "internal error" {
		t.Fatalf("plain error = %+v", ep)
	}
}
