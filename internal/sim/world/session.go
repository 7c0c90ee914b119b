package world

import (
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"voxelrealm.ai/internal/sim/fall"
)

const (
	ClassTank   = "tank"
	ClassMage   = "mage"
	ClassHealer = "healer"
	ClassRogue  = "rogue"
)

const (
	AnimIdle   = "idle"
	AnimWalk   = "walk"
	AnimGather = "gather"
)

const (
	EmotionNeutral = "neutral"
	maxEmotionMS   = 10000
)

var (
	validClasses  = map[string]bool{ClassTank: true, ClassMage: true, ClassHealer: true, ClassRogue: true}
	validAnims    = map[string]bool{AnimIdle: true, AnimWalk: true, AnimGather: true}
	validEmotions = map[string]bool{
		EmotionNeutral: true, "happy": true, "angry": true, "sad": true,
		"surprised": true, "cool": true, "love": true, "dead": true,
	}
)

type Buff struct {
	Value float64
	Until time.Time
}

// Session is the connection-scoped state of one logged-in user.
type Session struct {
	ConnID     string
	RemoteAddr string

	UserID   int64
	Username string
	FullName string
	Role     string

	CharacterID   int64
	CharacterName string
	ModelKey      string
	Class         string

	WorldID   int64
	WorldName string
	InWorld   bool

	Pos          mgl64.Vec3
	Yaw          float64
	Anim         string
	Emotion      string
	EmotionUntil time.Time

	HP          int
	MaxHP       int
	Fall        fall.Tracker
	DeathReason string

	StealthUntil time.Time
	Buffs        map[string]Buff

	lastPos *[3]float64
	chat    *rate.Limiter
}

func newSession(connID, remote string, u User, maxHP int, chatRate float64, chatBurst int) *Session {
	return &Session{
		ConnID:     connID,
		RemoteAddr: remote,
		UserID:     u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		Role:       u.Role,
		Class:      roleClass(u.Role),
		Anim:       AnimIdle,
		Emotion:    EmotionNeutral,
		HP:         maxHP,
		MaxHP:      maxHP,
		Buffs:      map[string]Buff{},
		lastPos:    u.LastPos,
		chat:       rate.NewLimiter(rate.Limit(chatRate), chatBurst),
	}
}

func (s *Session) Dead() bool { return s.Fall.State == fall.Dead || s.HP <= 0 }

func (s *Session) IsAdmin() bool { return s.Role == RoleAdmin }

func (s *Session) Stealthed(now time.Time) bool { return now.Before(s.StealthUntil) }

func (s *Session) emotionAt(now time.Time) string {
	if !s.EmotionUntil.IsZero() && !now.Before(s.EmotionUntil) {
		return EmotionNeutral
	}
	return s.Emotion
}

func (s *Session) selectCharacter(c Character) {
	s.CharacterID = c.ID
	s.CharacterName = c.Name
	s.ModelKey = c.ModelKey
	s.Class = classForModel(c.ModelKey, s.Role)
}

func (s *Session) leaveWorld() {
	s.InWorld = false
	s.WorldID = 0
	s.WorldName = ""
}

func roleClass(role string) string {
	switch role {
	case RoleAdmin:
		return ClassTank
	case RoleModerator:
		return ClassMage
	default:
		return ClassRogue
	}
}

// classForModel derives the archetype from keywords in a model key, falling
// back to the role default when none match.
func classForModel(modelKey, role string) string {
	k := strings.ToLower(modelKey)
	switch {
	case strings.Contains(k, "tank"), strings.Contains(k, "warrior"), strings.Contains(k, "knight"):
		return ClassTank
	case strings.Contains(k, "mage"), strings.Contains(k, "wizard"), strings.Contains(k, "witch"):
		return ClassMage
	case strings.Contains(k, "heal"), strings.Contains(k, "priest"), strings.Contains(k, "cleric"):
		return ClassHealer
	case strings.Contains(k, "rogue"), strings.Contains(k, "thief"), strings.Contains(k, "assassin"):
		return ClassRogue
	}
	return roleClass(role)
}
