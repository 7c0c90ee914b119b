package world

import (
	"context"
	"errors"
	"time"

	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/voxel"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrSlotsFull = errors.New("character slots full")
)

const (
	RolePlayer    = "player"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID              int64
	Username        string
	FullName        string
	Email           string
	Role            string
	PasswordHash    string
	PasswordSalt    string
	Banned          bool
	Locked          bool
	FailedLogins    int
	LastPos         *[3]float64
	LastCharacterID int64
}

type NewUser struct {
	Username     string
	FullName     string
	Email        string
	Role         string
	PasswordHash string
	PasswordSalt string
}

type WorldRecord struct {
	ID           int64
	Name         string
	Seed         string
	Active       bool
	ViewDistance int
	FogEnabled   bool
	FogMode      string
	FogColor     string
	FogNear      float64
	FogFar       float64
	FogDensity   float64
}

type TerrainRecord struct {
	Config terrain.Config
	Cells  map[string]string
}

type Character struct {
	ID        int64
	UserID    int64
	SlotIndex int
	Name      string
	ModelKey  string
	CreatedAt time.Time
}

type AdminAction struct {
	ActorID int64
	Action  string
	Target  string
	Detail  string
	At      time.Time
}

// Store is the persistence boundary of the world server. Implementations
// return ErrNotFound, ErrDuplicate and ErrSlotsFull (possibly wrapped) for the
// corresponding conditions.
type Store interface {
	CreateUser(ctx context.Context, u NewUser) (int64, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	RecordLoginFailure(ctx context.Context, userID int64) error
	RecordLogin(ctx context.Context, userID int64, remoteAddr string, at time.Time) error
	SetOffline(ctx context.Context, userID int64, lastPos *[3]float64) error
	SetLastCharacter(ctx context.Context, userID, characterID int64) error

	ActiveWorld(ctx context.Context) (WorldRecord, error)
	WorldByName(ctx context.Context, name string) (WorldRecord, error)
	WorldTerrain(ctx context.Context, worldID int64) (TerrainRecord, error)

	Items(ctx context.Context, codes []string) (map[string]inventory.Item, error)
	DecorAssets(ctx context.Context) ([]decor.Asset, error)
	DecorDrops(ctx context.Context, assetCode string) ([]decor.DropRow, error)
	DecorState(ctx context.Context, worldID int64) (decor.State, error)
	SaveDecorState(ctx context.Context, worldID int64, st decor.State) error

	VoxelChunks(ctx context.Context, worldID int64) ([]voxel.ChunkRecord, error)
	// SaveVoxelChunk replaces a chunk's override set; an empty set deletes it.
	SaveVoxelChunk(ctx context.Context, worldID int64, key voxel.ChunkKey, ovs []voxel.Override) error

	Inventory(ctx context.Context, userID int64, layout inventory.Layout) (*inventory.Grid, error)
	// UpdateInventory runs fn on the user's grid inside one exclusive
	// transaction. An error from fn rolls back and is returned unwrapped.
	UpdateInventory(ctx context.Context, userID int64, layout inventory.Layout, fn func(*inventory.Grid, inventory.Catalog) error) (*inventory.Grid, error)

	Characters(ctx context.Context, userID int64) ([]Character, error)
	Character(ctx context.Context, userID, characterID int64) (Character, error)
	CreateCharacter(ctx context.Context, userID int64, name, modelKey string, maxSlots int) (Character, error)
	DeleteCharacter(ctx context.Context, userID, characterID int64) error

	LogAdminAction(ctx context.Context, a AdminAction) error
}

// Credentials hashes and verifies account passwords.
type Credentials interface {
	Hash(password string) (hash, salt string, err error)
	Verify(password, hash, salt string) bool
}

type AuditEntry struct {
	Time     string `json:"ts"`
	World    string `json:"world"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Action   string `json:"action"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	From     uint16 `json:"from"`
	To       uint16 `json:"to"`
}

type AuditLogger interface {
	WriteAudit(v AuditEntry) error
}
