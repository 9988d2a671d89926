package rules

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

//go:embed default_rules.toml
var defaultRules []byte

// Rules holds the bundle definitions and per-code unit limits.
type Rules struct {
	Bundles   map[string][]string `toml:"bundles"`
	UnitLimit map[string]int      `toml:"allowed_units"`

	// bundle name by canonical code set key
	bundleKeys map[string]string
}

// Default returns the embedded rules.
func Default() *Rules {
	r, err := parse(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// Load reads rules from path. An empty path returns Default().
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}

	var r Rules
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, errors.Wrapf(err, "failed to decode rules file %s", path)
	}
	r.index()
	return &r, nil
}

func parse(data []byte) (*Rules, error) {
	var r Rules
	if _, err := toml.Decode(string(data), &r); err != nil {
		return nil, err
	}
	r.index()
	return &r, nil
}

func (r *Rules) index() {
	r.bundleKeys = make(map[string]string, len(r.Bundles))

	names := make([]string, 0, len(r.Bundles))
	for name := range r.Bundles {
		names = append(names, name)
	}
	// first name wins when two bundles share a code set
	sort.Strings(names)
	for _, name := range names {
		key := setKey(r.Bundles[name])
		if _, exists := r.bundleKeys[key]; !exists {
			r.bundleKeys[key] = name
		}
	}
}

// MatchBundle returns the bundle whose code set equals codes. Order and duplicates are ignored.
func (r *Rules) MatchBundle(codes []string) (string, bool) {
	if len(codes) == 0 {
		return "", false
	}
	name, ok := r.bundleKeys[setKey(codes)]
	return name, ok
}

// AllowedUnits returns the unit limit configured for cpt.
func (r *Rules) AllowedUnits(cpt string) (int, bool) {
	n, ok := r.UnitLimit[cpt]
	return n, ok
}

// Codes returns every CPT referenced by a bundle, sorted.
func (r *Rules) Codes() []string {
	seen := make(map[string]struct{})
	for _, codes := range r.Bundles {
		for _, c := range codes {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func setKey(codes []string) string {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	uniq := make([]string, 0, len(set))
	for c := range set {
		uniq = append(uniq, c)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, "|")
}
