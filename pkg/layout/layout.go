// Package layout holds the named builtin layouts cairo-lang programs
// compile against: which builtins a layout includes, and at what ratio
// (spec.md §4.4, "layout-driven builtin inclusion").
package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Builtin is one entry of a layout's builtin table.
type Builtin struct {
	Name  string
	Ratio uint64 // 0 means unratioed (e.g. output)
}

// Layout is a named, ordered builtin table; order matters; it is the
// order builtins are allocated segments in and the order their names
// appear in a compiled program's builtin list.
type Layout struct {
	Name     string
	Builtins []Builtin
}

func (l Layout) Includes(name string) bool {
	for _, b := range l.Builtins {
		if b.Name == name {
			return true
		}
	}
	return false
}

func (l Layout) RatioFor(name string) (uint64, bool) {
	for _, b := range l.Builtins {
		if b.Name == name {
			return b.Ratio, true
		}
	}
	return 0, false
}

// These table values match cairo-lang's published layout definitions
// (starkware/cairo/lang/instances.py): the plain layout has no builtins
// at all, small adds output, pedersen, range_check and ecdsa, dex has the
// same builtin set as small, recursive (output, pedersen, range_check,
// bitwise, poseidon) serves recursive-proof verification, starknet is the
// layout StarkNet blocks compile against,
// and all_cairo/all_solidity are the maximal layouts used by generic
// tooling.
var (
	Plain = Layout{Name: "plain"}

	Small = Layout{Name: "small", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 8},
		{Name: "range_check", Ratio: 8},
		{Name: "ecdsa", Ratio: 512},
	}}

	Dex = Layout{Name: "dex", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 8},
		{Name: "range_check", Ratio: 8},
		{Name: "ecdsa", Ratio: 512},
	}}

	Recursive = Layout{Name: "recursive", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 128},
		{Name: "range_check", Ratio: 8},
		{Name: "bitwise", Ratio: 8},
		{Name: "poseidon", Ratio: 8},
	}}

	Starknet = Layout{Name: "starknet", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 32},
		{Name: "range_check", Ratio: 16},
		{Name: "ecdsa", Ratio: 2048},
		{Name: "bitwise", Ratio: 64},
		{Name: "ec_op", Ratio: 1024},
		{Name: "poseidon", Ratio: 32},
	}}

	StarknetWithKeccak = Layout{Name: "starknet_with_keccak", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 32},
		{Name: "range_check", Ratio: 16},
		{Name: "ecdsa", Ratio: 2048},
		{Name: "bitwise", Ratio: 64},
		{Name: "ec_op", Ratio: 1024},
		{Name: "keccak", Ratio: 2048},
		{Name: "poseidon", Ratio: 32},
	}}

	RecursiveLargeOutput = Layout{Name: "recursive_large_output", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 128},
		{Name: "range_check", Ratio: 8},
		{Name: "bitwise", Ratio: 8},
		{Name: "poseidon", Ratio: 8},
	}}

	AllSolidity = Layout{Name: "all_solidity", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 8},
		{Name: "range_check", Ratio: 8},
		{Name: "ecdsa", Ratio: 512},
		{Name: "bitwise", Ratio: 256},
		{Name: "ec_op", Ratio: 256},
	}}

	AllCairo = Layout{Name: "all_cairo", Builtins: []Builtin{
		{Name: "output"},
		{Name: "pedersen", Ratio: 32},
		{Name: "range_check", Ratio: 16},
		{Name: "ecdsa", Ratio: 2048},
		{Name: "bitwise", Ratio: 16},
		{Name: "ec_op", Ratio: 256},
		{Name: "keccak", Ratio: 2048},
		{Name: "poseidon", Ratio: 32},
	}}
)

var byName = map[string]Layout{
	Plain.Name:                 Plain,
	Small.Name:                 Small,
	Dex.Name:                   Dex,
	Recursive.Name:             Recursive,
	Starknet.Name:              Starknet,
	StarknetWithKeccak.Name:    StarknetWithKeccak,
	RecursiveLargeOutput.Name:  RecursiveLargeOutput,
	AllSolidity.Name:           AllSolidity,
	AllCairo.Name:              AllCairo,
}

// Get resolves a layout by its `--layout` flag name.
func Get(name string) (Layout, error) {
	layout, ok := byName[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout: %q", name)
	}
	return layout, nil
}

// fileLayout is the YAML document shape a custom layout file takes; kept
// separate from Layout so the zero-value-means-unratioed convention isn't
// exposed as a YAML authoring footgun (the file spells it out as `ratio: 0`
// or omits the key, both of which decode to 0 either way).
type fileLayout struct {
	Name     string `yaml:"name"`
	Builtins []struct {
		Name  string `yaml:"name"`
		Ratio uint64 `yaml:"ratio"`
	} `yaml:"builtins"`
}

// LoadFile reads a custom layout definition from a YAML file, for
// deployments that need a builtin table the named layouts above don't
// cover (spec.md §6's layout-driven builtin inclusion is not limited to
// cairo-lang's published set).
func LoadFile(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("reading layout file %s: %w", path, err)
	}

	var doc fileLayout
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Layout{}, fmt.Errorf("parsing layout file %s: %w", path, err)
	}
	if doc.Name == "" {
		return Layout{}, fmt.Errorf("layout file %s: missing name", path)
	}

	layout := Layout{Name: doc.Name}
	for _, b := range doc.Builtins {
		layout.Builtins = append(layout.Builtins, Builtin{Name: b.Name, Ratio: b.Ratio})
	}
	return layout, nil
}

// Dynamic builds a layout directly from the program's own declared
// builtin list, each at its package default ratio; used for the
// `--layout dynamic` mode where the layout is inferred rather than named.
func Dynamic(builtinNames []string, ratioFor func(name string) uint64) Layout {
	l := Layout{Name: "dynamic"}
	for _, name := range builtinNames {
		l.Builtins = append(l.Builtins, Builtin{Name: name, Ratio: ratioFor(name)})
	}
	return l
}
