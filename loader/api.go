package loader

import (
	"github.com/nathoo/talecore/types"
	lua "github.com/yuin/gopher-lua"
)

// collector accumulates Lua definitions during script execution.
type collector struct {
	game      *lua.LTable
	variables []any
	triggers  []any
	win       []string
	lose      []string
}

// decode merges the Game table with the constructor calls and maps the
// result onto a rawGame. Constructor calls append to any lists the Game
// table already declares.
func (c *collector) decode() (*rawGame, error) {
	doc := map[string]any{}
	if c.game != nil {
		if m, ok := toGoValue(c.game).(map[string]any); ok {
			doc = m
		}
	}
	appendList(doc, "variables", c.variables)
	appendList(doc, "triggers", c.triggers)
	appendList(doc, "win_conditions", stringsToAny(c.win))
	appendList(doc, "lose_conditions", stringsToAny(c.lose))
	return decodeGame(doc)
}

func appendList(doc map[string]any, key string, items []any) {
	if len(items) == 0 {
		return
	}
	existing, _ := doc[key].([]any)
	doc[key] = append(existing, items...)
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerEffectHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Game { game_id = "...", title = "...", ... }
	L.SetGlobal("Game", L.NewFunction(func(L *lua.LState) int {
		coll.game = L.CheckTable(1)
		return 0
	}))

	// Variable "id" { type = "integer", ... }
	L.SetGlobal("Variable", curried(L, func(id string, tbl *lua.LTable) {
		coll.variables = append(coll.variables, withID(id, tbl))
	}))

	// Trigger "id" { when = "...", effects = { ... } }
	L.SetGlobal("Trigger", curried(L, func(id string, tbl *lua.LTable) {
		coll.triggers = append(coll.triggers, withID(id, tbl))
	}))

	// Win "expr" / Lose "expr"
	L.SetGlobal("Win", L.NewFunction(func(L *lua.LState) int {
		coll.win = append(coll.win, L.CheckString(1))
		return 0
	}))
	L.SetGlobal("Lose", L.NewFunction(func(L *lua.LState) int {
		coll.lose = append(coll.lose, L.CheckString(1))
		return 0
	}))
}

// curried returns a Lua function taking an id that returns a function
// taking the definition table.
func curried(L *lua.LState, fn func(id string, tbl *lua.LTable)) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			fn(id, L.CheckTable(1))
			return 0
		}))
		return 1
	})
}

func withID(id string, tbl *lua.LTable) map[string]any {
	m, _ := toGoValue(tbl).(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	m["id"] = id
	return m
}

func registerEffectHelpers(L *lua.LState) {
	// Set("path", value)
	L.SetGlobal("Set", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpSet, L.CheckString(1), L.Get(2)))
		return 1
	}))

	// Inc("path", n), n defaults to 1.
	L.SetGlobal("Inc", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpInc, L.CheckString(1), L.OptNumber(2, 1)))
		return 1
	}))

	// Dec("path", n), n defaults to 1.
	L.SetGlobal("Dec", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpDec, L.CheckString(1), L.OptNumber(2, 1)))
		return 1
	}))

	// Push("path", item)
	L.SetGlobal("Push", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpPush, L.CheckString(1), L.CheckAny(2)))
		return 1
	}))

	// Remove("path", item)
	L.SetGlobal("Remove", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpRemove, L.CheckString(1), L.CheckAny(2)))
		return 1
	}))

	// Toggle("path")
	L.SetGlobal("Toggle", L.NewFunction(func(L *lua.LState) int {
		L.Push(effectTable(L, types.OpToggle, L.CheckString(1), lua.LNil))
		return 1
	}))

	// Event("type", "message")
	L.SetGlobal("Event", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("type", lua.LString(L.CheckString(1)))
		tbl.RawSetString("message", lua.LString(L.CheckString(2)))
		L.Push(tbl)
		return 1
	}))
}

func effectTable(L *lua.LState, op, path string, v lua.LValue) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("op", lua.LString(op))
	tbl.RawSetString("path", lua.LString(path))
	if v != lua.LNil {
		tbl.RawSetString("value", v)
	}
	return tbl
}
