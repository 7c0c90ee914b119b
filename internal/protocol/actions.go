package protocol

// Client requests.
const (
	ActPing                 = "ping"
	ActRegister             = "register"
	ActLogin                = "login"
	ActLogout               = "logout"
	ActCharacterList        = "character_list"
	ActCharacterCreate      = "character_create"
	ActCharacterDelete      = "character_delete"
	ActCharacterSelect      = "character_select"
	ActGetActiveWorld       = "get_active_world"
	ActEnterWorld           = "enter_world"
	ActWorldMove            = "world_move"
	ActWorldBlockBreak      = "world_block_break"
	ActWorldBlockPlace      = "world_block_place"
	ActWorldBlockBatch      = "world_block_batch"
	ActWorldDecorRemove     = "world_decor_remove"
	ActWorldLootPickup      = "world_loot_pickup"
	ActWorldRespawn         = "world_respawn"
	ActWorldChat            = "world_chat"
	ActWorldSetEmotion      = "world_set_emotion"
	ActWorldSetClass        = "world_set_class"
	ActInventoryGet         = "inventory_get"
	ActInventoryMove        = "inventory_move"
	ActInventorySplit       = "inventory_split"
	ActInventoryShiftClick  = "inventory_shift_click"
	ActInventoryUse         = "inventory_use"
	ActDecorWorldRegenerate = "decor_world_regenerate"
)

// Server events.
const (
	EvUserOnline         = "user_online"
	EvUserOffline        = "user_offline"
	EvPlayerJoined       = "world_player_joined"
	EvPlayerLeft         = "world_player_left"
	EvPlayerMoved        = "world_player_moved"
	EvPlayerHP           = "world_player_hp"
	EvPlayerDied         = "world_player_died"
	EvPlayerRespawned    = "world_player_respawned"
	EvBlockChanged       = "world_block_changed"
	EvDecorRemoved       = "world_decor_removed"
	EvDecorRespawned     = "world_decor_respawned"
	EvDecorRegenerated   = "world_decor_regenerated"
	EvLootSpawned        = "world_loot_spawned"
	EvLootUpdated        = "world_loot_updated"
	EvLootRemoved        = "world_loot_removed"
	EvChatMessage        = "world_chat_message"
	EvPlayerEmotion      = "world_player_emotion"
	EvPlayerClassChanged = "world_player_class_changed"
	EvInventoryUpdated   = "inventory_updated"
	EvKicked             = "kicked"
	LootRemovedAll       = "__all__"
)
