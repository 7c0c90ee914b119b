package inventory

import (
	"encoding/json"
	"strings"
)

const (
	EffectHeal    = "heal"
	EffectBuff    = "buff"
	EffectStealth = "stealth"
)

const (
	defaultHeal         = 50
	defaultStealthMS    = 6000
	defaultBuffMS       = 8000
	minEffectDurationMS = 500
)

type Effect struct {
	Type       string  `json:"type"`
	Value      float64 `json:"value,omitempty"`
	DurationMS int     `json:"duration_ms,omitempty"`
	Stat       string  `json:"stat,omitempty"`
}

var consumableTypes = map[string]bool{
	"consumable": true,
	"potion":     true,
	"food":       true,
	"elixir":     true,
}

// DecodeEffect reads the consumable descriptor from item properties. The
// descriptor may be an object or a bare type string under "consumable" or
// "effect"; consumable item types without one heal by a default amount.
func DecodeEffect(it Item) (Effect, bool) {
	var props map[string]json.RawMessage
	if len(it.Properties) > 0 {
		_ = json.Unmarshal(it.Properties, &props)
	}
	raw, ok := props["consumable"]
	if !ok || isNull(raw) {
		raw, ok = props["effect"]
	}
	if !ok || isNull(raw) {
		if !consumableTypes[strings.ToLower(it.Type)] {
			return Effect{}, false
		}
		return Effect{Type: EffectHeal, Value: defaultHeal}, true
	}

	var desc struct {
		Type       string   `json:"type"`
		Value      *float64 `json:"value"`
		DurationMS *int     `json:"duration_ms"`
		Stat       string   `json:"stat"`
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		desc.Type = name
	} else if err := json.Unmarshal(raw, &desc); err != nil {
		return Effect{}, false
	}

	switch strings.ToLower(strings.TrimSpace(desc.Type)) {
	case "", "heal", "health":
		e := Effect{Type: EffectHeal, Value: defaultHeal}
		if desc.Value != nil && *desc.Value > 0 {
			e.Value = *desc.Value
		}
		return e, true
	case "stealth", "invisibility":
		return Effect{Type: EffectStealth, DurationMS: duration(desc.DurationMS, defaultStealthMS)}, true
	case "buff", "boost":
		e := Effect{Type: EffectBuff, DurationMS: duration(desc.DurationMS, defaultBuffMS), Stat: desc.Stat}
		if desc.Value != nil {
			e.Value = *desc.Value
		}
		return e, true
	}
	return Effect{}, false
}

func duration(v *int, def int) int {
	if v == nil {
		return def
	}
	return max(minEffectDurationMS, *v)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
