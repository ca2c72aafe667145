package dice

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Level is a named difficulty target loaded from the content table,
// e.g. {Name: "medium", Target: 12}.
type Level struct {
	Name   string `yaml:"name"`
	Target int    `yaml:"target"`
}

// LevelTable maps between named difficulty levels and target numbers.
// The zero value is unusable; construct with DefaultLevels or LoadLevels.
type LevelTable struct {
	levels []Level // sorted ascending by Target
}

// DefaultLevels returns the standard difficulty ladder.
func DefaultLevels() LevelTable {
	return LevelTable{levels: []Level{
		{Name: "trivial", Target: 4},
		{Name: "easy", Target: 8},
		{Name: "medium", Target: 12},
		{Name: "hard", Target: 16},
		{Name: "very_hard", Target: 20},
		{Name: "legendary", Target: 24},
	}}
}

// LoadLevels reads a difficulty table from a YAML file.
//
// Precondition: path must point to a YAML list of {name, target} entries.
// Postcondition: Returns a table with unique names and strictly ascending
// targets, or a descriptive error.
func LoadLevels(path string) (LevelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LevelTable{}, fmt.Errorf("reading difficulty table: %w", err)
	}

	var levels []Level
	if err := yaml.Unmarshal(data, &levels); err != nil {
		return LevelTable{}, fmt.Errorf("parsing difficulty table %q: %w", path, err)
	}
	if len(levels) == 0 {
		return LevelTable{}, fmt.Errorf("difficulty table %q is empty", path)
	}

	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Target < levels[j].Target })

	seen := make(map[string]bool, len(levels))
	for i, lvl := range levels {
		if lvl.Name == "" {
			return LevelTable{}, fmt.Errorf("difficulty table %q: entry %d has no name", path, i)
		}
		if lvl.Target < MinDifficulty || lvl.Target > MaxDifficulty {
			return LevelTable{}, fmt.Errorf("difficulty table %q: level %q target %d out of range [%d, %d]",
				path, lvl.Name, lvl.Target, MinDifficulty, MaxDifficulty)
		}
		if seen[lvl.Name] {
			return LevelTable{}, fmt.Errorf("difficulty table %q: duplicate level %q", path, lvl.Name)
		}
		seen[lvl.Name] = true
		if i > 0 && levels[i-1].Target == lvl.Target {
			return LevelTable{}, fmt.Errorf("difficulty table %q: levels %q and %q share target %d",
				path, levels[i-1].Name, lvl.Name, lvl.Target)
		}
	}

	return LevelTable{levels: levels}, nil
}

// Target resolves a level name to its target number.
func (t LevelTable) Target(name string) (int, bool) {
	for _, lvl := range t.levels {
		if lvl.Name == name {
			return lvl.Target, true
		}
	}
	return 0, false
}

// Classify returns the name of the hardest level whose target does not
// exceed the given difficulty. Difficulties below the easiest level
// classify as the easiest level.
func (t LevelTable) Classify(difficulty int) string {
	if len(t.levels) == 0 {
		return ""
	}
	name := t.levels[0].Name
	for _, lvl := range t.levels {
		if lvl.Target > difficulty {
			break
		}
		name = lvl.Name
	}
	return name
}

// Levels returns the table entries in ascending target order.
func (t LevelTable) Levels() []Level {
	out := make([]Level, len(t.levels))
	copy(out, t.levels)
	return out
}
