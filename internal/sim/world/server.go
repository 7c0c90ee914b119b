package world

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/tuning"
)

// Close codes sent to the transport when the server ends a connection.
const (
	CloseKicked    = 4001
	CloseQueueFull = 4008
)

// Conn is the server's handle on one transport connection. Out is drained by
// the transport's writer; Close must not block.
type Conn struct {
	ID         string
	RemoteAddr string
	Out        chan []byte
	Close      func(code int, reason string)
}

type Inbound struct {
	ConnID string
	Raw    []byte
}

type client struct {
	conn    Conn
	sess    *Session
	dropped bool
}

type Config struct {
	Tuning      tuning.Tuning
	Credentials Credentials
	Audit       AuditLogger
	Logger      *log.Logger
	Now         func() time.Time
	Rand        *rand.Rand
}

type connectReq struct {
	Conn Conn
	Resp chan struct{}
}

type forceLogoutReq struct {
	Username string
	Resp     chan bool
}

type stateReq struct {
	Resp chan StateSnapshot
}

// Server owns all world and session state. Everything below is touched only
// by the goroutine running Run.
type Server struct {
	store Store
	creds Credentials
	audit AuditLogger
	tun   tuning.Tuning
	log   *log.Logger
	now   func() time.Time
	rng   *rand.Rand

	layout   inventory.Layout
	maintain *decor.Maintainer

	clients map[string]*client
	worlds  map[int64]*worldState
	table   map[string]route

	connect     chan connectReq
	disconnect  chan string
	inbox       chan Inbound
	forceLogout chan forceLogoutReq
	state       chan stateReq
}

func New(store Store, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	t := cfg.Tuning
	queue := t.Network.MaxQueue
	if queue <= 0 {
		queue = 256
	}
	return &Server{
		store:    store,
		creds:    cfg.Credentials,
		audit:    cfg.Audit,
		tun:      t,
		log:      cfg.Logger,
		now:      cfg.Now,
		rng:      cfg.Rand,
		layout:   inventory.Layout{Total: t.Inventory.TotalSlots, Hotbar: t.Inventory.HotbarSlots},
		maintain: decor.NewMaintainer(t.Decor.MaintenanceInterval(), t.Decor.DefaultRespawn(), t.Decor.MinRespawn()),
		clients:  map[string]*client{},
		worlds:   map[int64]*worldState{},

		connect:     make(chan connectReq, 64),
		disconnect:  make(chan string, 64),
		inbox:       make(chan Inbound, queue),
		forceLogout: make(chan forceLogoutReq, 8),
		state:       make(chan stateReq, 8),
	}
}

func (s *Server) Disconnect() chan<- string { return s.disconnect }
func (s *Server) Inbox() chan<- Inbound     { return s.inbox }

// Connect registers c with the loop and returns once it is known, so frames
// sent to Inbox afterwards are never dropped as coming from a stranger.
func (s *Server) Connect(ctx context.Context, c Conn) error {
	req := connectReq{Conn: c, Resp: make(chan struct{}, 1)}
	select {
	case s.connect <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.Resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Run(ctx context.Context) error {
	interval := s.tun.Decor.MaintenanceInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case req := <-s.connect:
			c := req.Conn
			s.clients[c.ID] = &client{conn: c}
			s.log.Printf("conn open id=%s remote=%s", c.ID, c.RemoteAddr)
			req.Resp <- struct{}{}
		case id := <-s.disconnect:
			if c, ok := s.clients[id]; ok {
				s.dropClient(ctx, c, "closed")
			}
		case msg := <-s.inbox:
			if c, ok := s.clients[msg.ConnID]; ok {
				s.handle(ctx, c, msg.Raw)
			}
		case req := <-s.forceLogout:
			req.Resp <- s.handleForceLogout(ctx, req.Username)
		case req := <-s.state:
			req.Resp <- s.snapshot()
		case <-ticker.C:
			s.maintainAll(ctx)
		}
		s.reap(ctx)
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tun.Network.StoreTimeout())
	defer cancel()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := s.clients[id]
		s.dropClient(ctx, c, "shutdown")
		c.conn.Close(1001, "server shutting down")
	}
}

// reap cleans up connections whose send queue overflowed during the last
// message.
func (s *Server) reap(ctx context.Context) {
	for _, c := range s.clients {
		if !c.dropped {
			continue
		}
		s.dropClient(ctx, c, "send queue full")
		c.conn.Close(CloseQueueFull, "send queue full")
	}
}

// dropClient removes a connection and runs session cleanup.
func (s *Server) dropClient(ctx context.Context, c *client, why string) {
	delete(s.clients, c.conn.ID)
	s.endSession(ctx, c)
	s.log.Printf("conn close id=%s reason=%s", c.conn.ID, why)
}

// endSession announces the departure of a logged-in session and persists its
// offline state. The connection itself stays open.
func (s *Server) endSession(ctx context.Context, c *client) {
	sess := c.sess
	if sess == nil {
		return
	}
	c.sess = nil
	var last *[3]float64
	if sess.InWorld {
		pos := [3]float64{sess.Pos.X(), sess.Pos.Y(), sess.Pos.Z()}
		last = &pos
		worldID, name := sess.WorldID, sess.WorldName
		sess.leaveWorld()
		s.broadcastToWorld(name, protocol.EvPlayerLeft, protocol.UserPresenceEvent{UserID: sess.UserID, Username: sess.Username}, c.conn.ID)
		s.evictIfEmpty(worldID)
	}
	s.broadcastToAll(protocol.EvUserOffline, protocol.UserPresenceEvent{UserID: sess.UserID, Username: sess.Username}, c.conn.ID)

	sctx, cancel := context.WithTimeout(ctx, s.tun.Network.StoreTimeout())
	defer cancel()
	if err := s.store.SetOffline(sctx, sess.UserID, last); err != nil {
		s.log.Printf("set offline user=%s: %v", sess.Username, err)
	}
}

func (s *Server) sessionByUsername(name string) *client {
	for _, c := range s.clients {
		if c.sess != nil && strings.EqualFold(c.sess.Username, name) {
			return c
		}
	}
	return nil
}

func (s *Server) sessionByUserID(id int64) *client {
	for _, c := range s.clients {
		if c.sess != nil && c.sess.UserID == id {
			return c
		}
	}
	return nil
}

// ForceLogout ends the session of username, if any, and closes its connection.
func (s *Server) ForceLogout(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.adminTimeout())
	defer cancel()
	req := forceLogoutReq{Username: username, Resp: make(chan bool, 1)}
	select {
	case s.forceLogout <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.Resp:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Server) handleForceLogout(ctx context.Context, username string) bool {
	c := s.sessionByUsername(username)
	if c == nil {
		return false
	}
	s.kick(ctx, c, "forced logout")
	actx, cancel := context.WithTimeout(ctx, s.tun.Network.StoreTimeout())
	defer cancel()
	if err := s.store.LogAdminAction(actx, AdminAction{Action: "force_logout", Target: username, At: s.now()}); err != nil {
		s.log.Printf("admin audit: %v", err)
	}
	s.log.Printf("forced logout user=%s conn=%s", username, c.conn.ID)
	return true
}

// kick tells the client why it is being removed, then drops and closes it.
func (s *Server) kick(ctx context.Context, c *client, reason string) {
	s.send(c, protocol.Event(protocol.EvKicked, protocol.KickedEvent{Reason: reason}))
	s.dropClient(ctx, c, reason)
	c.conn.Close(CloseKicked, reason)
}

type WorldSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Players   int    `json:"players"`
	Overrides int    `json:"voxel_overrides"`
	Slots     int    `json:"decor_slots"`
	Removed   int    `json:"decor_removed"`
	Loot      int    `json:"loot"`
}

type SessionSummary struct {
	ConnID   string  `json:"conn_id"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
	World    string  `json:"world,omitempty"`
	HP       int     `json:"hp"`
	Dead     bool    `json:"dead"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

type StateSnapshot struct {
	Time        string           `json:"time"`
	Connections int              `json:"connections"`
	Sessions    []SessionSummary `json:"sessions"`
	Worlds      []WorldSummary   `json:"worlds"`
}

func (s *Server) State(ctx context.Context) (StateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.adminTimeout())
	defer cancel()
	req := stateReq{Resp: make(chan StateSnapshot, 1)}
	select {
	case s.state <- req:
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
	select {
	case st := <-req.Resp:
		return st, nil
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}

func (s *Server) snapshot() StateSnapshot {
	out := StateSnapshot{
		Time:        s.now().UTC().Format(time.RFC3339),
		Connections: len(s.clients),
		Sessions:    []SessionSummary{},
		Worlds:      []WorldSummary{},
	}
	players := map[int64]int{}
	for _, c := range s.clients {
		if c.sess == nil {
			continue
		}
		sess := c.sess
		out.Sessions = append(out.Sessions, SessionSummary{
			ConnID: c.conn.ID, Username: sess.Username, Role: sess.Role, World: sess.WorldName,
			HP: sess.HP, Dead: sess.Dead(), X: sess.Pos.X(), Y: sess.Pos.Y(), Z: sess.Pos.Z(),
		})
		if sess.InWorld {
			players[sess.WorldID]++
		}
	}
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].Username < out.Sessions[j].Username })
	for id, w := range s.worlds {
		out.Worlds = append(out.Worlds, WorldSummary{
			ID: id, Name: w.rec.Name, Players: players[id], Overrides: w.voxels.Len(),
			Slots: len(w.decor.Slots), Removed: len(w.decor.Removed), Loot: w.loot.Len(),
		})
	}
	sort.Slice(out.Worlds, func(i, j int) bool { return out.Worlds[i].ID < out.Worlds[j].ID })
	return out
}

func (s *Server) adminTimeout() time.Duration {
	if d := s.tun.Network.AdminTimeout(); d > 0 {
		return d
	}
	return 2500 * time.Millisecond
}

// send queues an encoded frame without blocking. A full queue marks the
// client for removal after the current message.
func (s *Server) send(c *client, r protocol.Response) {
	if c.dropped {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		s.log.Printf("encode %s: %v", r.Action, err)
		return
	}
	select {
	case c.conn.Out <- b:
	default:
		c.dropped = true
	}
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
