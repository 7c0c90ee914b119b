package world

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/tuning"
)

type frame struct {
	ID      json.RawMessage `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type testConn struct {
	id     string
	out    chan []byte
	closed []int
	events []frame
}

type harness struct {
	t     *testing.T
	srv   *Server
	store *memStore
	now   time.Time
	ctx   context.Context
	seq   int
}

func testTuning() tuning.Tuning {
	return tuning.Defaults()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newMemStore()
	st.worlds = []WorldRecord{{ID: 1, Name: "overworld", Seed: "test-seed", Active: true, ViewDistance: 6}}
	st.items = map[string]inventory.Item{
		"wood_log":      {Code: "wood_log", Name: "Wood Log", Type: "material", MaxStack: 64, Active: true},
		"health_potion": {Code: "health_potion", Name: "Health Potion", Type: "consumable", MaxStack: 16, Active: true, Properties: json.RawMessage(`{"consumable":{"type":"heal","value":200}}`)},
	}
	st.assets = []decor.Asset{{
		Code: "oak_tree", Name: "Oak", ModelPath: "models/oak.glb", Biome: "any",
		TargetCount: 4, MinSpacing: 3, Collectable: true, RespawnSeconds: 30, Active: true,
		Collider: decor.Collider{Type: decor.ColliderCylinder, Radius: 0.4, Height: 3},
	}}
	st.drops = map[string][]decor.DropRow{
		"oak_tree": {{AssetCode: "oak_tree", ItemCode: "wood_log", Chance: 100, QtyMin: 2, QtyMax: 2, Active: true}},
	}
	h := &harness{t: t, store: st, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ctx: context.Background()}
	h.srv = New(st, Config{
		Tuning:      testTuning(),
		Credentials: plainCreds{},
		Logger:      log.New(io.Discard, "", 0),
		Now:         func() time.Time { return h.now },
		Rand:        rand.New(rand.NewPCG(1, 2)),
	})
	h.srv.table = h.srv.routes()
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) connect(id string) *testConn {
	tc := &testConn{id: id, out: make(chan []byte, 256)}
	h.srv.clients[id] = &client{conn: Conn{
		ID:         id,
		RemoteAddr: "127.0.0.1:1",
		Out:        tc.out,
		Close:      func(code int, reason string) { tc.closed = append(tc.closed, code) },
	}}
	return tc
}

func (h *harness) client(tc *testConn) *client { return h.srv.clients[tc.id] }

func (h *harness) session(tc *testConn) *Session { return h.srv.clients[tc.id].sess }

// drain moves every queued frame into tc.events.
func (h *harness) drain(tc *testConn) {
	for {
		select {
		case b := <-tc.out:
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				h.t.Fatalf("bad frame %s: %v", b, err)
			}
			tc.events = append(tc.events, f)
		default:
			return
		}
	}
}

// call sends one request and returns its correlated response payload.
// Uncorrelated frames are kept on tc.events.
func (h *harness) call(tc *testConn, action string, payload any) json.RawMessage {
	h.t.Helper()
	h.seq++
	id := strconv.Itoa(h.seq)
	raw, err := json.Marshal(map[string]any{"id": h.seq, "action": action, "payload": payload})
	if err != nil {
		h.t.Fatalf("marshal: %v", err)
	}
	c, ok := h.srv.clients[tc.id]
	if !ok {
		h.t.Fatalf("%s: connection %s is gone", action, tc.id)
	}
	h.srv.handle(h.ctx, c, raw)
	h.srv.reap(h.ctx)

	var resp json.RawMessage
	n := 0
	for {
		select {
		case b := <-tc.out:
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				h.t.Fatalf("bad frame %s: %v", b, err)
			}
			if string(f.ID) == id {
				resp = f.Payload
				n++
				continue
			}
			tc.events = append(tc.events, f)
			continue
		default:
		}
		break
	}
	if n != 1 {
		h.t.Fatalf("%s: got %d correlated responses, want 1", action, n)
	}
	return resp
}

func (h *harness) ok(tc *testConn, action string, payload any, out any) {
	h.t.Helper()
	raw := h.call(tc, action, payload)
	var ep protocol.ErrorPayload
	_ = json.Unmarshal(raw, &ep)
	if !ep.OK {
		h.t.Fatalf("%s failed: %s", action, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			h.t.Fatalf("%s decode: %v", action, err)
		}
	}
}

func (h *harness) fail(tc *testConn, action string, payload any, code string) protocol.ErrorPayload {
	h.t.Helper()
	raw := h.call(tc, action, payload)
	var ep protocol.ErrorPayload
	if err := json.Unmarshal(raw, &ep); err != nil {
		h.t.Fatalf("%s decode: %v", action, err)
	}
	if ep.OK || ep.Code != code {
		h.t.Fatalf("%s: got %s, want code %s", action, raw, code)
	}
	return ep
}

func (tc *testConn) take(action string) []frame {
	var hit, rest []frame
	for _, f := range tc.events {
		if f.Action == action {
			hit = append(hit, f)
		} else {
			rest = append(rest, f)
		}
	}
	tc.events = rest
	return hit
}

// player registers, logs in, creates a character and enters the active world.
func (h *harness) player(name, role string) *testConn {
	h.t.Helper()
	tc := h.connect("conn-" + name)
	h.ok(tc, protocol.ActRegister, map[string]any{"username": name, "full_name": name + " Tester", "password": "secret1"}, nil)
	if role != "" {
		u, _ := h.store.UserByUsername(h.ctx, name)
		h.store.users[u.ID].Role = role
	}
	h.ok(tc, protocol.ActLogin, map[string]any{"username": name, "password": "secret1"}, nil)
	var cr protocol.CharacterResp
	h.ok(tc, protocol.ActCharacterCreate, map[string]any{"name": name + "_hero", "model_key": "models/knight.glb"}, &cr)
	h.ok(tc, protocol.ActCharacterSelect, map[string]any{"character_id": cr.Character.ID}, nil)
	h.ok(tc, protocol.ActEnterWorld, map[string]any{}, nil)
	tc.events = nil
	return tc
}
