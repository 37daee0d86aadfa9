// Package poi retrieves labelled point-of-interest layers (grocery stores and
// other food outlets) for a region.
package poi

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/overpass"
)

// Tier ranks food sources by quality.
type Tier int

// Tiers in order of quality.
const (
	Primary Tier = iota + 1
	Secondary
	Tertiary
)

// ParseTier parses "primary", "secondary" or "tertiary".
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return Primary, nil
	case "secondary":
		return Secondary, nil
	case "tertiary":
		return Tertiary, nil
	default:
		return 0, apperr.InvalidInput("poi.parse_tier", "unknown tier "+s)
	}
}

func (t Tier) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Tertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Label is the display category attached to every record of the tier.
func (t Tier) Label() string {
	switch t {
	case Primary:
		return "Grocery"
	case Secondary:
		return "Convenience"
	case Tertiary:
		return "Low Quality"
	default:
		return ""
	}
}

// MarshalYAML renders the tier by name.
func (t Tier) MarshalYAML() (any, error) { return t.String(), nil }

// UnmarshalYAML parses a tier name.
func (t *Tier) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseTier(n.Value)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Predicate is one (tier, key, value set) classification rule.
type Predicate struct {
	Tier   Tier     `yaml:"tier"`
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

// Taxonomy is the full list of classification rules.
type Taxonomy []Predicate

// DefaultTaxonomy returns the built-in food taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		{Tier: Primary, Key: "shop", Values: []string{"supermarket"}},
		{Tier: Secondary, Key: "shop", Values: []string{"general"}},
		{Tier: Secondary, Key: "shop", Values: []string{"convenience"}},
		{Tier: Secondary, Key: "shop", Values: []string{"greengrocer"}},
		{Tier: Tertiary, Key: "amenity", Values: []string{"fast_food"}},
		{Tier: Tertiary, Key: "shop", Values: []string{"variety_store"}},
		{Tier: Tertiary, Key: "amenity", Values: []string{"fuel"}},
	}
}

// LoadTaxonomy reads a YAML list of predicates.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "poi: read taxonomy %s", path)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "poi: parse taxonomy %s", path)
	}
	for i, p := range t {
		if p.Tier == 0 || strings.TrimSpace(p.Key) == "" {
			return nil, apperr.InvalidInput("poi.load_taxonomy", "predicate "+strconv.Itoa(i)+" needs a tier and a key")
		}
	}
	return t, nil
}

// TagSet is one key with its accepted values, sorted and de-duplicated. An
// empty Values matches any value.
type TagSet struct {
	Key    string
	Values []string
}

// Query is the canonical merged form of one tier's predicates.
type Query struct {
	Tier Tier
	Tags []TagSet // sorted by key
}

// Merge combines the predicates of tier into one query. Repeated keys
// collect their values; a predicate without values widens its key to any
// value. The result does not depend on predicate order.
func (t Taxonomy) Merge(tier Tier) Query {
	values := make(map[string]map[string]struct{})
	anyValue := make(map[string]bool)
	for _, p := range t {
		if p.Tier != tier {
			continue
		}
		set, ok := values[p.Key]
		if !ok {
			set = make(map[string]struct{})
			values[p.Key] = set
		}
		if len(p.Values) == 0 {
			anyValue[p.Key] = true
		}
		for _, v := range p.Values {
			set[v] = struct{}{}
		}
	}

	q := Query{Tier: tier}
	for key, set := range values {
		ts := TagSet{Key: key}
		if !anyValue[key] {
			for v := range set {
				ts.Values = append(ts.Values, v)
			}
			sort.Strings(ts.Values)
		}
		q.Tags = append(q.Tags, ts)
	}
	sort.Slice(q.Tags, func(i, j int) bool { return q.Tags[i].Key < q.Tags[j].Key })
	return q
}

// Empty reports whether the query matches nothing.
func (q Query) Empty() bool { return len(q.Tags) == 0 }

// Filters converts the query to Overpass tag filters.
func (q Query) Filters() []overpass.Filter {
	out := make([]overpass.Filter, len(q.Tags))
	for i, ts := range q.Tags {
		out[i] = overpass.Filter{Key: ts.Key, Values: ts.Values}
	}
	return out
}

// Matches reports whether tags satisfy any tag set of the query.
func (q Query) Matches(tags map[string]string) bool {
	for _, ts := range q.Tags {
		v, ok := tags[ts.Key]
		if !ok {
			continue
		}
		if len(ts.Values) == 0 {
			return true
		}
		i := sort.SearchStrings(ts.Values, v)
		if i < len(ts.Values) && ts.Values[i] == v {
			return true
		}
	}
	return false
}

// String renders the query canonically, e.g. `shop=convenience|general`.
func (q Query) String() string {
	parts := make([]string, len(q.Tags))
	for i, ts := range q.Tags {
		if len(ts.Values) == 0 {
			parts[i] = ts.Key + "=*"
			continue
		}
		parts[i] = ts.Key + "=" + strings.Join(ts.Values, "|")
	}
	return strings.Join(parts, ";")
}
