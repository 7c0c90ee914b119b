package protocol

import "encoding/json"

// Requests.

type RegisterReq struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CharacterCreateReq struct {
	Name     string `json:"name"`
	ModelKey string `json:"model_key"`
}

type CharacterIDReq struct {
	CharacterID int64 `json:"character_id"`
}

type EnterWorldReq struct {
	WorldName string `json:"world_name,omitempty"`
}

type MoveReq struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Yaw  float64 `json:"yaw"`
	Anim string  `json:"animation_state,omitempty"`
}

type BlockReq struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BlockID uint16 `json:"block_id"`
}

type BlockOp struct {
	Op      string `json:"op"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BlockID uint16 `json:"block_id,omitempty"`
}

type BlockBatchReq struct {
	Ops []BlockOp `json:"ops"`
}

type KeyReq struct {
	Key string `json:"key"`
}

type ChatReq struct {
	Message string `json:"message"`
}

type EmotionReq struct {
	Emotion    string `json:"emotion"`
	DurationMS int    `json:"duration_ms"`
}

type ClassReq struct {
	Class string `json:"class"`
}

type SlotPairReq struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

type SlotReq struct {
	Slot int `json:"slot"`
}

// Shared views.

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type CharacterView struct {
	ID        int64  `json:"id"`
	SlotIndex int    `json:"slot_index"`
	Name      string `json:"name"`
	ModelKey  string `json:"model_key"`
	Class     string `json:"class"`
}

type PlayerView struct {
	UserID        int64   `json:"user_id"`
	Username      string  `json:"username"`
	CharacterID   int64   `json:"character_id"`
	CharacterName string  `json:"character_name"`
	ModelKey      string  `json:"model_key"`
	Class         string  `json:"class"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Z             float64 `json:"z"`
	Yaw           float64 `json:"yaw"`
	Anim          string  `json:"animation_state"`
	Emotion       string  `json:"emotion"`
	HP            int     `json:"hp"`
	MaxHP         int     `json:"max_hp"`
	Dead          bool    `json:"dead"`
	Stealth       bool    `json:"stealth,omitempty"`
}

type WorldView struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Seed         string  `json:"seed"`
	ViewDistance int     `json:"view_distance"`
	FogEnabled   bool    `json:"fog_enabled"`
	FogMode      string  `json:"fog_mode"`
	FogColor     string  `json:"fog_color"`
	FogNear      float64 `json:"fog_near"`
	FogFar       float64 `json:"fog_far"`
	FogDensity   float64 `json:"fog_density"`
}

type SlotView struct {
	Index    int    `json:"slot_index"`
	ItemCode string `json:"item_code,omitempty"`
	Quantity int    `json:"quantity"`
}

type ItemView struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Type       string          `json:"item_type"`
	Rarity     string          `json:"rarity,omitempty"`
	MaxStack   int             `json:"max_stack"`
	IconPath   string          `json:"icon_path,omitempty"`
	ModelPath  string          `json:"model_path,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

type InventoryView struct {
	TotalSlots  int                 `json:"total_slots"`
	HotbarSlots int                 `json:"hotbar_slots"`
	Slots       []SlotView          `json:"slots"`
	Items       map[string]ItemView `json:"items"`
}

type ColliderView struct {
	Type    string  `json:"type"`
	Radius  float64 `json:"radius,omitempty"`
	Height  float64 `json:"height,omitempty"`
	HalfX   float64 `json:"half_x,omitempty"`
	HalfZ   float64 `json:"half_z,omitempty"`
	OffsetY float64 `json:"offset_y,omitempty"`
}

type DecorSlotView struct {
	Key         string       `json:"key"`
	AssetCode   string       `json:"asset_code"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Z           float64      `json:"z"`
	Biome       string       `json:"biome"`
	Scale       float64      `json:"scale"`
	Yaw         float64      `json:"yaw"`
	Collectable bool         `json:"collectable"`
	Collider    ColliderView `json:"collider"`
}

type DecorAssetView struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	ModelPath string `json:"model_path"`
	IconPath  string `json:"icon_path,omitempty"`
}

type DecorView struct {
	Signature string           `json:"signature"`
	Slots     []DecorSlotView  `json:"slots"`
	Removed   []string         `json:"removed"`
	Assets    []DecorAssetView `json:"assets"`
}

type LootView struct {
	Key       string  `json:"key"`
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	ModelPath string  `json:"model_path,omitempty"`
	IconPath  string  `json:"icon_path,omitempty"`
	Scale     float64 `json:"scale"`
	Quantity  int     `json:"quantity"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

type BlockChange struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BlockID uint16 `json:"block_id"`
}

type VoxelChunkView struct {
	CX        int      `json:"cx"`
	CZ        int      `json:"cz"`
	Overrides [][4]int `json:"overrides"`
}

// Responses.

type OKResp struct {
	OK bool `json:"ok"`
}

type PongResp struct {
	OK         bool   `json:"ok"`
	ServerTime int64  `json:"server_time"`
	Version    string `json:"version"`
}

type LoginResp struct {
	OK   bool     `json:"ok"`
	User UserView `json:"user"`
}

type RegisterResp struct {
	OK     bool  `json:"ok"`
	UserID int64 `json:"user_id"`
}

type CharacterListResp struct {
	OK         bool            `json:"ok"`
	MaxSlots   int             `json:"max_slots"`
	Characters []CharacterView `json:"characters"`
}

type CharacterResp struct {
	OK        bool          `json:"ok"`
	Character CharacterView `json:"character"`
}

type ActiveWorldResp struct {
	OK    bool      `json:"ok"`
	World WorldView `json:"world"`
}

type EnterWorldResp struct {
	OK        bool             `json:"ok"`
	World     WorldView        `json:"world"`
	Terrain   any              `json:"terrain"`
	Player    PlayerView       `json:"player"`
	Players   []PlayerView     `json:"players"`
	Decor     DecorView        `json:"decor"`
	Loot      []LootView       `json:"loot"`
	Voxels    []VoxelChunkView `json:"voxel_chunks"`
	Inventory InventoryView    `json:"inventory"`
}

type MoveResp struct {
	OK       bool    `json:"ok"`
	HP       int     `json:"hp"`
	MaxHP    int     `json:"max_hp"`
	Dead     bool    `json:"dead,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Damage   int     `json:"damage,omitempty"`
	Distance float64 `json:"fall_distance,omitempty"`
	Respawn  *Vec3   `json:"respawn,omitempty"`
}

type BlockResp struct {
	OK      bool          `json:"ok"`
	Changes []BlockChange `json:"changes"`
}

type DecorRemoveResp struct {
	OK   bool       `json:"ok"`
	Key  string     `json:"key"`
	Loot []LootView `json:"loot"`
}

type LootPickupResp struct {
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Code      string        `json:"code,omitempty"`
	Key       string        `json:"key"`
	Added     int           `json:"added"`
	Left      int           `json:"left"`
	Inventory InventoryView `json:"inventory"`
}

type RespawnResp struct {
	OK     bool       `json:"ok"`
	Player PlayerView `json:"player"`
}

type ChatResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Command string `json:"command,omitempty"`
	Target  string `json:"target,omitempty"`
	Item    string `json:"item_code,omitempty"`
	Added   int    `json:"added,omitempty"`
	Left    int    `json:"left,omitempty"`
}

type EmotionResp struct {
	OK         bool   `json:"ok"`
	Emotion    string `json:"emotion"`
	DurationMS int    `json:"duration_ms"`
}

type ClassResp struct {
	OK    bool   `json:"ok"`
	Class string `json:"class"`
}

type InventoryResp struct {
	OK        bool          `json:"ok"`
	Inventory InventoryView `json:"inventory"`
}

type InventoryUseResp struct {
	OK        bool          `json:"ok"`
	Item      string        `json:"item_code"`
	Effect    EffectView    `json:"effect"`
	HP        int           `json:"hp"`
	MaxHP     int           `json:"max_hp"`
	Inventory InventoryView `json:"inventory"`
}

type EffectView struct {
	Type       string  `json:"type"`
	Value      float64 `json:"value,omitempty"`
	DurationMS int     `json:"duration_ms,omitempty"`
	Stat       string  `json:"stat,omitempty"`
}

type RegenerateResp struct {
	OK    bool      `json:"ok"`
	Decor DecorView `json:"decor"`
}

// Events.

type UserPresenceEvent struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type PlayerMovedEvent struct {
	UserID int64   `json:"user_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Yaw    float64 `json:"yaw"`
	Anim   string  `json:"animation_state"`
}

type PlayerHPEvent struct {
	UserID int64  `json:"user_id"`
	HP     int    `json:"hp"`
	MaxHP  int    `json:"max_hp"`
	Damage int    `json:"damage,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type PlayerDiedEvent struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

type BlockChangedEvent struct {
	By      int64         `json:"by"`
	Changes []BlockChange `json:"changes"`
}

type DecorRemovedEvent struct {
	Key string `json:"key"`
	By  int64  `json:"by"`
}

type DecorRespawnedEvent struct {
	Keys []string `json:"keys"`
}

type DecorRegeneratedEvent struct {
	Decor DecorView `json:"decor"`
}

type LootSpawnedEvent struct {
	Loot []LootView `json:"loot"`
}

type LootUpdatedEvent struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"`
}

type LootRemovedEvent struct {
	Key string `json:"key"`
	By  int64  `json:"by,omitempty"`
}

type ChatMessageEvent struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	CharacterName string `json:"character_name"`
	Message       string `json:"message"`
	At            int64  `json:"at"`
}

type PlayerEmotionEvent struct {
	UserID     int64  `json:"user_id"`
	Emotion    string `json:"emotion"`
	DurationMS int    `json:"duration_ms"`
}

type ClassChangedEvent struct {
	UserID int64  `json:"user_id"`
	Class  string `json:"class"`
}

type InventoryUpdatedEvent struct {
	Inventory InventoryView `json:"inventory"`
}

type KickedEvent struct {
	Reason string `json:"reason"`
}
