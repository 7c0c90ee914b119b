package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelrealm.ai/internal/protocol"
)

type bot struct {
	conn   *websocket.Conn
	log    *log.Logger
	nextID int
}

type frame struct {
	ID      json.RawMessage `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "username (registered on first run)")
		password = flag.String("password", "botpass", "password")
		model    = flag.String("model", "knight.glb", "character model key")
		every    = flag.Duration("every", 2*time.Second, "step interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	b := &bot{conn: conn, log: logger}

	// Registration fails with a conflict once the account exists.
	_, _ = b.call(protocol.ActRegister, protocol.RegisterReq{Username: *name, FullName: *name + " bot", Password: *password})
	if _, err := b.call(protocol.ActLogin, protocol.LoginReq{Username: *name, Password: *password}); err != nil {
		logger.Fatalf("login: %v", err)
	}

	raw, err := b.call(protocol.ActCharacterList, nil)
	if err != nil {
		logger.Fatalf("character_list: %v", err)
	}
	var list protocol.CharacterListResp
	_ = json.Unmarshal(raw, &list)
	var charID int64
	if len(list.Characters) > 0 {
		charID = list.Characters[0].ID
	} else {
		raw, err := b.call(protocol.ActCharacterCreate, protocol.CharacterCreateReq{Name: *name, ModelKey: *model})
		if err != nil {
			logger.Fatalf("character_create: %v", err)
		}
		var cr protocol.CharacterResp
		_ = json.Unmarshal(raw, &cr)
		charID = cr.Character.ID
	}
	if _, err := b.call(protocol.ActCharacterSelect, protocol.CharacterIDReq{CharacterID: charID}); err != nil {
		logger.Fatalf("character_select: %v", err)
	}

	raw, err = b.call(protocol.ActEnterWorld, protocol.EnterWorldReq{})
	if err != nil {
		logger.Fatalf("enter_world: %v", err)
	}
	var enter protocol.EnterWorldResp
	if err := json.Unmarshal(raw, &enter); err != nil {
		logger.Fatalf("enter_world payload: %v", err)
	}
	logger.Printf("entered world=%s at %.1f,%.1f,%.1f hp=%d", enter.World.Name, enter.Player.X, enter.Player.Y, enter.Player.Z, enter.Player.HP)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	tick := time.NewTicker(*every)
	defer tick.Stop()

	pos := [3]float64{enter.Player.X, enter.Player.Y, enter.Player.Z}
	for n := 1; ; n++ {
		select {
		case <-stop:
			_, _ = b.call(protocol.ActLogout, nil)
			return
		case <-tick.C:
		}
		pos[0] += rand.Float64()*4 - 2
		pos[2] += rand.Float64()*4 - 2
		raw, err := b.call(protocol.ActWorldMove, protocol.MoveReq{X: pos[0], Y: pos[1], Z: pos[2], Anim: "walk"})
		if err != nil {
			logger.Printf("move: %v", err)
			continue
		}
		var mv protocol.MoveResp
		if json.Unmarshal(raw, &mv) == nil {
			if mv.Respawn != nil {
				pos = [3]float64{mv.Respawn.X, mv.Respawn.Y, mv.Respawn.Z}
			}
			if mv.Dead {
				logger.Printf("died (%s); respawning", mv.Reason)
				raw, err := b.call(protocol.ActWorldRespawn, nil)
				if err != nil {
					logger.Printf("respawn: %v", err)
					continue
				}
				var rr protocol.RespawnResp
				if json.Unmarshal(raw, &rr) == nil {
					pos = [3]float64{rr.Player.X, rr.Player.Y, rr.Player.Z}
				}
			}
		}
		if n%5 == 0 {
			msg := fmt.Sprintf("step %d at %.0f,%.0f,%.0f", n, pos[0], pos[1], pos[2])
			if _, err := b.call(protocol.ActWorldChat, protocol.ChatReq{Message: msg}); err != nil {
				logger.Printf("chat: %v", err)
			}
		}
	}
}

// call sends one request and waits for the response with the same id,
// logging events that arrive in between.
func (b *bot) call(action string, payload any) (json.RawMessage, error) {
	b.nextID++
	id := b.nextID
	req := map[string]any{"id": id, "action": action}
	if payload != nil {
		req["payload"] = payload
	}
	if err := b.conn.WriteJSON(req); err != nil {
		return nil, err
	}
	want := fmt.Sprint(id)
	for {
		_ = b.conn.SetReadDeadline(time.Now().Add(15 * time.Second))
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		if string(f.ID) != want {
			b.log.Printf("event %s %s", f.Action, f.Payload)
			continue
		}
		var ep protocol.ErrorPayload
		if json.Unmarshal(f.Payload, &ep) == nil && !ep.OK && ep.Error != "" {
			return f.Payload, fmt.Errorf("%s: %s", ep.Code, ep.Error)
		}
		return f.Payload, nil
	}
}
