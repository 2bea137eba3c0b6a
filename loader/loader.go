// Package loader reads a game directory into immutable definitions.
// Content is authored either as YAML or as a Lua script; the Lua VM is
// discarded after loading.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathoo/talecore/engine/state"
	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"
)

// Files recognized in a game directory.
const (
	GameYAML     = "game.yaml"
	TriggersYAML = "triggers.yaml"
	GameLua      = "game.lua"
	WorldFile    = "world.md"
	IntroFile    = "intro.md"
)

// Load reads the game in dir, validates it and compiles it.
// A directory holding both game.yaml and game.lua is rejected.
func Load(dir string) (*state.Defs, error) {
	defs, _, err := LoadWithWarnings(dir)
	return defs, err
}

// LoadWithWarnings is Load that also returns non-fatal content warnings.
func LoadWithWarnings(dir string) (*state.Defs, []string, error) {
	hasYAML := fileExists(filepath.Join(dir, GameYAML))
	hasLua := fileExists(filepath.Join(dir, GameLua))

	var (
		raw *rawGame
		err error
	)
	switch {
	case hasYAML && hasLua:
		return nil, nil, fmt.Errorf("%s contains both %s and %s", dir, GameYAML, GameLua)
	case hasYAML:
		raw, err = loadYAML(dir)
	case hasLua:
		raw, err = loadLua(dir)
	default:
		return nil, nil, fmt.Errorf("no %s or %s found in %s", GameYAML, GameLua, dir)
	}
	if err != nil {
		return nil, nil, err
	}

	ve, err := validate(raw)
	if err != nil {
		return nil, ve.Warnings, err
	}

	defs, err := compile(raw)
	if err != nil {
		return nil, ve.Warnings, fmt.Errorf("compiling game data: %w", err)
	}

	if defs.Game.World, err = readOptional(filepath.Join(dir, WorldFile)); err != nil {
		return nil, ve.Warnings, err
	}
	if defs.Game.Intro, err = readOptional(filepath.Join(dir, IntroFile)); err != nil {
		return nil, ve.Warnings, err
	}
	return defs, ve.Warnings, nil
}

func loadYAML(dir string) (*rawGame, error) {
	var doc map[string]any
	if err := readYAML(filepath.Join(dir, GameYAML), &doc); err != nil {
		return nil, err
	}
	raw, err := decodeGame(doc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", GameYAML, err)
	}

	path := filepath.Join(dir, TriggersYAML)
	if !fileExists(path) {
		return raw, nil
	}
	var tdoc map[string]any
	if err := readYAML(path, &tdoc); err != nil {
		return nil, err
	}
	var tf rawTriggerFile
	if err := decode(tdoc, &tf); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", TriggersYAML, err)
	}
	raw.Triggers = append(raw.Triggers, tf.Triggers...)
	return raw, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadLua(dir string) (*rawGame, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openSafeLibs(L)
	sandbox(L)

	coll := &collector{}
	registerAPI(L, coll)

	if err := L.DoFile(filepath.Join(dir, GameLua)); err != nil {
		return nil, fmt.Errorf("executing %s: %w", GameLua, err)
	}
	raw, err := coll.decode()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", GameLua, err)
	}
	return raw, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach the filesystem or break determinism.
func sandbox(L *lua.LState) {
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "require", "module",
	} {
		L.SetGlobal(name, lua.LNil)
	}
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("randomseed", lua.LNil)
	}
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(string(data)), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
