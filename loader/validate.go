package loader

import (
	"fmt"
	"strings"

	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/engine/rules"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

func (e *ValidationError) errorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

func (e *ValidationError) warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

var (
	validTypes = map[types.VarType]bool{
		types.VarNumber: true, types.VarInteger: true, types.VarBoolean: true,
		types.VarEnum: true, types.VarString: true, types.VarList: true, types.VarObject: true,
	}
	validPolicies = map[types.UpdatePolicy]bool{
		"": true, types.PolicyAny: true, types.PolicyIncDecOnly: true, types.PolicySetOnly: true,
	}
	validFormats = map[string]bool{
		"": true, "bar": true, "plain": true, "list": true, "chips": true, "keyvalue": true,
	}
	validWeights = map[string]bool{
		"": true, "high": true, "medium": true, "low": true, "hidden": true,
	}
	validStyles = map[string]bool{"": true, "meter": true, "text": true}
)

// validate checks raw content before compilation. Warnings are returned
// alongside a nil error when there are no errors.
func validate(raw *rawGame) (*ValidationError, error) {
	ve := &ValidationError{}

	if raw.GameID == "" {
		ve.errorf("game_id is required")
	}
	if raw.Title == "" {
		ve.errorf("title is required")
	}
	if len(raw.Variables) == 0 {
		ve.errorf("at least one variable is required")
	}

	vars := validateVariables(raw.Variables, ve)

	for id, x := range raw.InitialState {
		def, ok := vars[id]
		if !ok {
			ve.errorf("initial_state.%s: undeclared variable", id)
			continue
		}
		if !validTypes[def.Type] {
			continue
		}
		if _, err := initialValue(def, x); err != nil {
			ve.errorf("initial_state.%s: %v", id, err)
		}
	}

	for _, it := range raw.StatusBar.Items {
		if !validStyles[it.Style] {
			ve.errorf("status_bar item %q: unknown style %q", it.VarID, it.Style)
		}
		if _, ok := vars[it.VarID]; !ok {
			ve.warnf("status_bar item %q does not match any variable", it.VarID)
		}
	}

	validateTriggers(raw.Triggers, vars, ve)
	validateExprs("win_conditions", raw.WinConditions, ve)
	validateExprs("lose_conditions", raw.LoseConditions, ve)

	if len(ve.Errors) > 0 {
		return ve, ve
	}
	return ve, nil
}

func validateVariables(vs []rawVariable, ve *ValidationError) map[string]types.VariableDef {
	vars := make(map[string]types.VariableDef, len(vs))
	for i, rv := range vs {
		if rv.ID == "" {
			ve.errorf("variables[%d]: id is required", i)
			continue
		}
		if strings.ContainsAny(rv.ID, "./ ") {
			ve.errorf("variable %q: id must not contain '.', '/' or spaces", rv.ID)
		}
		if _, dup := vars[rv.ID]; dup {
			ve.errorf("variable %q: duplicate id", rv.ID)
			continue
		}
		def := compileVariable(rv)
		vars[rv.ID] = def

		if !validTypes[def.Type] {
			ve.errorf("variable %q: unknown type %q", rv.ID, rv.Type)
			continue
		}
		if def.Type == types.VarEnum && len(rv.EnumValues) == 0 {
			ve.errorf("variable %q: enum requires enum_values", rv.ID)
		}
		if def.Type != types.VarEnum && len(rv.EnumValues) > 0 {
			ve.errorf("variable %q: enum_values only apply to enum variables", rv.ID)
		}
		if rv.Min != nil && rv.Max != nil && *rv.Min > *rv.Max {
			ve.errorf("variable %q: min %v exceeds max %v", rv.ID, *rv.Min, *rv.Max)
		}
		if (rv.Min != nil || rv.Max != nil) && def.Type != types.VarInteger && def.Type != types.VarNumber {
			ve.warnf("variable %q: min/max ignored for %s", rv.ID, def.Type)
		}
		if !validPolicies[types.UpdatePolicy(rv.Rules.UpdatePolicy)] {
			ve.errorf("variable %q: unknown update_policy %q", rv.ID, rv.Rules.UpdatePolicy)
		}
		if !validFormats[rv.Card.Format] {
			ve.errorf("variable %q: unknown card format %q", rv.ID, rv.Card.Format)
		}
		if !validWeights[rv.Card.PromptWeight] {
			ve.errorf("variable %q: unknown prompt_weight %q", rv.ID, rv.Card.PromptWeight)
		}
		if _, err := initialValue(def, rv.Default); err != nil {
			ve.errorf("variable %q: default: %v", rv.ID, err)
		}
	}
	return vars
}

func validateTriggers(ts []rawTrigger, vars map[string]types.VariableDef, ve *ValidationError) {
	seen := make(map[string]bool, len(ts))
	for i, t := range ts {
		name := t.ID
		if name == "" {
			name = fmt.Sprintf("triggers[%d]", i)
			ve.errorf("%s: id is required", name)
		} else if seen[t.ID] {
			ve.errorf("trigger %q: duplicate id", t.ID)
		}
		seen[t.ID] = true

		if strings.TrimSpace(t.When) == "" {
			ve.errorf("trigger %q: when is required", name)
		} else if err := rules.CompileCondition(t.When).Err(); err != nil {
			ve.errorf("trigger %q: when: %v", name, err)
		}

		for j, e := range t.Effects {
			if _, ok := effects.CanonicalOp(e.Op); !ok {
				ve.errorf("trigger %q effect %d: unknown op %q", name, j, e.Op)
			}
			root := state.Root(e.Path)
			if root == "" {
				ve.errorf("trigger %q effect %d: path is required", name, j)
			} else if _, ok := vars[root]; !ok {
				ve.errorf("trigger %q effect %d: unknown variable %q", name, j, root)
			}
		}
		for j, ev := range t.Events {
			if ev.Type == "" || ev.Message == "" {
				ve.errorf("trigger %q event %d: type and message are required", name, j)
			}
		}
	}
}

func validateExprs(field string, exprs []string, ve *ValidationError) {
	for i, expr := range exprs {
		if err := rules.CompileCondition(expr).Err(); err != nil {
			ve.errorf("%s[%d]: %v", field, i, err)
		}
	}
}
