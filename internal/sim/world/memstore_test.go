package world

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/voxel"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu sync.Mutex

	users    map[int64]*User
	online   map[int64]bool
	worlds   []WorldRecord
	terrain  map[int64]TerrainRecord
	items    map[string]inventory.Item
	assets   []decor.Asset
	drops    map[string][]decor.DropRow
	decor    map[int64]decor.State
	chunks   map[int64]map[voxel.ChunkKey][]voxel.Override
	grids    map[int64]*inventory.Grid
	chars    map[int64][]Character
	actions  []AdminAction
	nextID   int64
	failSave bool

	// failItems and failInventory break reads only.
	failItems     bool
	failInventory bool
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int64]*User{},
		online:  map[int64]bool{},
		terrain: map[int64]TerrainRecord{},
		items:   map[string]inventory.Item{},
		drops:   map[string][]decor.DropRow{},
		decor:   map[int64]decor.State{},
		chunks:  map[int64]map[voxel.ChunkKey][]voxel.Override{},
		grids:   map[int64]*inventory.Grid{},
		chars:   map[int64][]Character{},
	}
}

var errInjected = errors.New("injected failure")

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if strings.EqualFold(e.Username, u.Username) {
			return 0, ErrDuplicate
		}
	}
	id := m.id()
	m.users[id] = &User{
		ID: id, Username: u.Username, FullName: u.FullName, Email: u.Email, Role: u.Role,
		PasswordHash: u.PasswordHash, PasswordSalt: u.PasswordSalt,
	}
	return id, nil
}

func (m *memStore) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) RecordLoginFailure(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].FailedLogins++
	return nil
}

func (m *memStore) RecordLogin(ctx context.Context, userID int64, remote string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].FailedLogins = 0
	m.online[userID] = true
	return nil
}

func (m *memStore) SetOffline(ctx context.Context, userID int64, pos *[3]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = false
	if pos != nil {
		p := *pos
		m.users[userID].LastPos = &p
	}
	return nil
}

func (m *memStore) SetLastCharacter(ctx context.Context, userID, characterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].LastCharacterID = characterID
	return nil
}

func (m *memStore) ActiveWorld(ctx context.Context) (WorldRecord, error) {
	for _, w := range m.worlds {
		if w.Active {
			return w, nil
		}
	}
	return WorldRecord{}, ErrNotFound
}

func (m *memStore) WorldByName(ctx context.Context, name string) (WorldRecord, error) {
	for _, w := range m.worlds {
		if w.Name == name {
			return w, nil
		}
	}
	return WorldRecord{}, ErrNotFound
}

func (m *memStore) WorldTerrain(ctx context.Context, worldID int64) (TerrainRecord, error) {
	if t, ok := m.terrain[worldID]; ok {
		return t, nil
	}
	return TerrainRecord{}, ErrNotFound
}

func (m *memStore) Items(ctx context.Context, codes []string) (map[string]inventory.Item, error) {
	if m.failItems {
		return nil, errInjected
	}
	out := map[string]inventory.Item{}
	for _, c := range codes {
		if it, ok := m.items[c]; ok {
			out[c] = it
		}
	}
	return out, nil
}

func (m *memStore) DecorAssets(ctx context.Context) ([]decor.Asset, error) {
	var out []decor.Asset
	for _, a := range m.assets {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) DecorDrops(ctx context.Context, asset string) ([]decor.DropRow, error) {
	return m.drops[asset], nil
}

func (m *memStore) DecorState(ctx context.Context, worldID int64) (decor.State, error) {
	st, ok := m.decor[worldID]
	if !ok {
		return decor.State{}, ErrNotFound
	}
	cp := st
	cp.Removed = map[string]float64{}
	for k, v := range st.Removed {
		cp.Removed[k] = v
	}
	return cp, nil
}

func (m *memStore) SaveDecorState(ctx context.Context, worldID int64, st decor.State) error {
	if m.failSave {
		return errInjected
	}
	cp := st
	cp.Slots = append([]decor.Slot(nil), st.Slots...)
	cp.Removed = map[string]float64{}
	for k, v := range st.Removed {
		cp.Removed[k] = v
	}
	m.decor[worldID] = cp
	return nil
}

func (m *memStore) VoxelChunks(ctx context.Context, worldID int64) ([]voxel.ChunkRecord, error) {
	var out []voxel.ChunkRecord
	for k, ovs := range m.chunks[worldID] {
		out = append(out, voxel.ChunkRecord{Key: k, Overrides: append([]voxel.Override(nil), ovs...)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.CX != out[j].Key.CX {
			return out[i].Key.CX < out[j].Key.CX
		}
		return out[i].Key.CZ < out[j].Key.CZ
	})
	return out, nil
}

func (m *memStore) SaveVoxelChunk(ctx context.Context, worldID int64, key voxel.ChunkKey, ovs []voxel.Override) error {
	if m.failSave {
		return errInjected
	}
	if m.chunks[worldID] == nil {
		m.chunks[worldID] = map[voxel.ChunkKey][]voxel.Override{}
	}
	if len(ovs) == 0 {
		delete(m.chunks[worldID], key)
		return nil
	}
	m.chunks[worldID][key] = append([]voxel.Override(nil), ovs...)
	return nil
}

func (m *memStore) grid(userID int64, l inventory.Layout) *inventory.Grid {
	g, ok := m.grids[userID]
	if !ok {
		g = inventory.NewGrid(l)
		m.grids[userID] = g
	}
	return g
}

func (m *memStore) Inventory(ctx context.Context, userID int64, l inventory.Layout) (*inventory.Grid, error) {
	if m.failInventory {
		return nil, errInjected
	}
	return m.grid(userID, l).Clone(), nil
}

func (m *memStore) UpdateInventory(ctx context.Context, userID int64, l inventory.Layout, fn func(*inventory.Grid, inventory.Catalog) error) (*inventory.Grid, error) {
	if m.failSave {
		return nil, errInjected
	}
	work := m.grid(userID, l).Clone()
	cat := inventory.MapCatalog(m.items)
	if err := fn(work, cat); err != nil {
		return nil, err
	}
	if err := work.Validate(cat); err != nil {
		return nil, err
	}
	m.grids[userID] = work
	return work.Clone(), nil
}

func (m *memStore) Characters(ctx context.Context, userID int64) ([]Character, error) {
	return append([]Character(nil), m.chars[userID]...), nil
}

func (m *memStore) Character(ctx context.Context, userID, characterID int64) (Character, error) {
	for _, c := range m.chars[userID] {
		if c.ID == characterID {
			return c, nil
		}
	}
	return Character{}, ErrNotFound
}

func (m *memStore) CreateCharacter(ctx context.Context, userID int64, name, model string, maxSlots int) (Character, error) {
	used := map[int]bool{}
	for _, c := range m.chars[userID] {
		if strings.EqualFold(c.Name, name) {
			return Character{}, ErrDuplicate
		}
		used[c.SlotIndex] = true
	}
	for slot := 0; slot < maxSlots; slot++ {
		if used[slot] {
			continue
		}
		c := Character{ID: m.id(), UserID: userID, SlotIndex: slot, Name: name, ModelKey: model}
		m.chars[userID] = append(m.chars[userID], c)
		return c, nil
	}
	return Character{}, ErrSlotsFull
}

func (m *memStore) DeleteCharacter(ctx context.Context, userID, characterID int64) error {
	cs := m.chars[userID]
	for i, c := range cs {
		if c.ID == characterID {
			m.chars[userID] = append(cs[:i], cs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) LogAdminAction(ctx context.Context, a AdminAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
	return nil
}

// plainCreds stores passwords reversibly; tests only.
type plainCreds struct{}

func (plainCreds) Hash(pw string) (string, string, error) { return "h:" + pw, "salt", nil }
func (plainCreds) Verify(pw, hash, salt string) bool      { return hash == "h:"+pw && salt == "salt" }
