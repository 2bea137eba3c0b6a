package rules

import (
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/engine/value"
)

// Normalizer restores a structural invariant on composite state values.
type Normalizer interface {
	Normalize(s state.Tree)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(s state.Tree)

// Normalize calls f(s).
func (f NormalizerFunc) Normalize(s state.Tree) { f(s) }

// TimeNormalizer returns a normalizer for an object variable with numeric
// "hour" and "minute" fields. Minutes carry into hours and negative totals
// clamp to zero. Hours never carry into "day"; day is only truncated to an
// integer when present.
func TimeNormalizer(varID string) Normalizer {
	return NormalizerFunc(func(s state.Tree) {
		obj, ok := s[varID].Object()
		if !ok {
			return
		}
		hour, hok := obj["hour"]
		minute, mok := obj["minute"]
		if !hok || !mok || !hour.IsNumeric() || !minute.IsNumeric() {
			return
		}
		day, hasDay := obj["day"]
		if hasDay && !day.IsNumeric() {
			return
		}

		total := truncate(hour)*60 + truncate(minute)
		if total < 0 {
			total = 0
		}
		obj["hour"] = value.NewInt(total / 60)
		obj["minute"] = value.NewInt(total % 60)
		if hasDay {
			obj["day"] = value.NewInt(truncate(day))
		}
	})
}

func truncate(v value.Value) int64 {
	if i, ok := v.Int(); ok {
		return i
	}
	f, _ := v.Float()
	return int64(f)
}
