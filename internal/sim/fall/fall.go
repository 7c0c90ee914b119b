package fall

import (
	"math"
	"time"
)

type State uint8

const (
	Grounded State = iota
	Falling
	Dead
)

func (s State) String() string {
	switch s {
	case Grounded:
		return "grounded"
	case Falling:
		return "falling"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

const (
	ReasonFall = "fall_distance"
	ReasonVoid = "void_floor"
)

type Config struct {
	FallDamage bool
	VoidDeath  bool
	Threshold  float64
	VoidFloor  float64
	Epsilon    float64
	Protection time.Duration
}

type Outcome struct {
	Resolved   bool
	Distance   float64
	Damage     int
	HP         int
	Died       bool
	Reason     string
	VoidReturn bool
}

// Tracker follows the vertical motion of one session.
type Tracker struct {
	State          State
	Peak           float64
	Low            float64
	LastY          float64
	ProtectedUntil time.Time

	primed bool
}

// DamagePct is the share of max HP lost for a fall of distance voxels.
func DamagePct(distance, threshold float64) float64 {
	if threshold <= 0 {
		threshold = 1
	}
	ratio := distance / threshold
	if ratio < 1 {
		return 0
	}
	return math.Max(0, math.Min(100, 15*ratio-5))
}

func Damage(maxHP int, pct float64) int {
	if pct <= 0 || maxHP <= 0 {
		return 0
	}
	d := int(math.Ceil(float64(maxHP) * pct / 100))
	return max(1, d)
}

// Reset places the tracker on the ground at y and arms spawn protection.
func (t *Tracker) Reset(y float64, now time.Time, cfg Config) {
	t.State = Grounded
	t.Peak, t.Low, t.LastY = y, y, y
	t.ProtectedUntil = now.Add(cfg.Protection)
	t.primed = true
}

func (t *Tracker) Kill() {
	t.State = Dead
}

func (t *Tracker) Protected(now time.Time) bool {
	return now.Before(t.ProtectedUntil)
}

// Observe feeds the next reported Y. hp is the session's current HP; the
// returned Outcome carries the HP after any damage.
func (t *Tracker) Observe(y float64, now time.Time, hp, maxHP int, cfg Config) Outcome {
	out := Outcome{HP: hp}
	if t.State == Dead {
		return out
	}
	prev := t.LastY
	t.LastY = y
	if !t.primed {
		t.primed = true
		t.Peak, t.Low = y, y
		return out
	}
	if t.Protected(now) {
		t.State = Grounded
		t.Peak, t.Low = y, y
		return out
	}

	atVoid := y <= cfg.VoidFloor
	switch t.State {
	case Grounded:
		if y < prev-cfg.Epsilon {
			t.State = Falling
			t.Peak = prev
			t.Low = y
		} else {
			t.Peak, t.Low = y, y
		}
		if !atVoid {
			return out
		}
	case Falling:
		if y < t.Low {
			t.Low = y
		}
		if !atVoid {
			if y >= prev-cfg.Epsilon {
				return t.resolve(y, t.Low, ReasonFall, hp, maxHP, cfg)
			}
			return out
		}
	}
	if t.State == Grounded {
		t.Peak = math.Max(prev, y)
	}
	return t.resolve(y, y, ReasonVoid, hp, maxHP, cfg)
}

func (t *Tracker) resolve(y, landY float64, reason string, hp, maxHP int, cfg Config) Outcome {
	dist := math.Max(0, t.Peak-landY)
	t.State = Grounded
	t.Peak, t.Low = y, y

	out := Outcome{Resolved: true, Distance: dist, Reason: reason}
	if cfg.FallDamage {
		out.Damage = Damage(maxHP, DamagePct(dist, cfg.Threshold))
		hp -= out.Damage
	}
	if reason == ReasonVoid && hp > 0 {
		if cfg.VoidDeath {
			out.Damage += hp
			hp = 0
		} else {
			out.VoidReturn = true
		}
	}
	if hp <= 0 {
		hp = 0
		out.Died = true
		out.VoidReturn = false
		t.State = Dead
	}
	out.HP = hp
	return out
}
