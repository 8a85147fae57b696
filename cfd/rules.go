package cfd

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRuleKey is the rule applied to features with no specific entry.
const DefaultRuleKey = "default"

//go:embed rules.yaml
var defaultRulesYAML []byte

// Levels is a snappyHexMesh refinement pair.
type Levels struct {
	EdgeLength float64 `yaml:"edgeLength" json:"edgeLength"`
	Level      int     `yaml:"level" json:"level"`
}

// WakeRule places a coarser box downstream of a feature.
type WakeRule struct {
	Offset []float64 `yaml:"offset" json:"offset"`
	Scale  []float64 `yaml:"scale" json:"scale"`
}

// RotationRule marks a feature type as rotating and sizes its MRF zone.
type RotationRule struct {
	Axis               string   `yaml:"axis" json:"axis"`
	Zone               string   `yaml:"zone" json:"zone"`
	RadiusScale        float64  `yaml:"radiusScale" json:"radiusScale"`
	HeightScale        float64  `yaml:"heightScale" json:"heightScale"`
	DefaultRadius      float64  `yaml:"defaultRadius" json:"defaultRadius"`
	DefaultHeight      float64  `yaml:"defaultHeight" json:"defaultHeight"`
	RPM                float64  `yaml:"rpm,omitempty" json:"rpm,omitempty"`
	Rolling            bool     `yaml:"rolling,omitempty" json:"rolling,omitempty"`
	NonRotatingPatches []string `yaml:"nonRotatingPatches" json:"nonRotatingPatches"`
}

// axisIndex returns the local column named by Axis.
func (r *RotationRule) axisIndex() int {
	switch r.Axis {
	case "x":
		return 0
	case "y":
		return 1
	default:
		return 2
	}
}

// FeatureTypeRule is everything the generators need to know about one
// feature type.
type FeatureTypeRule struct {
	Levels   Levels        `yaml:"levels" json:"levels"`
	Wake     *WakeRule     `yaml:"wake,omitempty" json:"wake,omitempty"`
	Rotation *RotationRule `yaml:"rotation,omitempty" json:"rotation,omitempty"`
}

// RuleTable maps feature types (or full feature ids) to rules.
type RuleTable map[string]FeatureTypeRule

// DefaultRules returns a fresh copy of the built-in rule table.
func DefaultRules() RuleTable {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("cfd: embedded rules.yaml is invalid: %v", err))
	}
	return rules
}

// ParseRules decodes a YAML rule table. Call Validate before use.
func ParseRules(data []byte) (RuleTable, error) {
	var rules RuleTable
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}
	if rules == nil {
		rules = RuleTable{}
	}
	return rules, nil
}

// LoadRules reads a rule file, merges it over the built-in rules and
// validates the result.
func LoadRules(path string) (RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rules file not found: %s", path)
		}
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	override, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	merged := DefaultRules().Merge(override)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return merged, nil
}

// Merge returns a copy of t with every entry of override applied on top.
// An override entry replaces the parts it sets; omitted levels, wake or
// rotation blocks are inherited from t.
func (t RuleTable) Merge(override RuleTable) RuleTable {
	out := make(RuleTable, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, o := range override {
		base, ok := out[k]
		if !ok {
			out[k] = o
			continue
		}
		if o.Levels != (Levels{}) {
			base.Levels = o.Levels
		}
		if o.Wake != nil {
			base.Wake = o.Wake
		}
		if o.Rotation != nil {
			base.Rotation = o.Rotation
		}
		out[k] = base
	}
	return out
}

// Validate checks that the table has a default rule and that every rule
// is usable.
func (t RuleTable) Validate() error {
	if _, ok := t[DefaultRuleKey]; !ok {
		return fmt.Errorf("rules.%s is required", DefaultRuleKey)
	}
	for _, key := range t.Keys() {
		r := t[key]
		if r.Levels.EdgeLength <= 0 {
			return fmt.Errorf("rules.%s.levels.edgeLength must be positive", key)
		}
		if r.Levels.Level < 1 {
			return fmt.Errorf("rules.%s.levels.level must be at least 1", key)
		}
		if w := r.Wake; w != nil {
			if len(w.Offset) != 3 {
				return fmt.Errorf("rules.%s.wake.offset needs 3 components, got %d", key, len(w.Offset))
			}
			if len(w.Scale) != 3 {
				return fmt.Errorf("rules.%s.wake.scale needs 3 components, got %d", key, len(w.Scale))
			}
			for i, s := range w.Scale {
				if s <= 0 {
					return fmt.Errorf("rules.%s.wake.scale[%d] must be positive", key, i)
				}
			}
		}
		if rot := r.Rotation; rot != nil {
			switch rot.Axis {
			case "x", "y", "z":
			default:
				return fmt.Errorf("rules.%s.rotation.axis must be x, y or z, got %q", key, rot.Axis)
			}
			switch CellZoneShape(rot.Zone) {
			case ZoneCylinder, ZoneSphere:
			default:
				return fmt.Errorf("rules.%s.rotation.zone must be cylinder or sphere, got %q", key, rot.Zone)
			}
			if rot.RadiusScale < 1 || rot.HeightScale < 1 {
				return fmt.Errorf("rules.%s.rotation scale factors must be at least 1", key)
			}
			if rot.DefaultRadius <= 0 || rot.DefaultHeight <= 0 {
				return fmt.Errorf("rules.%s.rotation default radius and height must be positive", key)
			}
			if rot.RPM < 0 {
				return fmt.Errorf("rules.%s.rotation.rpm must not be negative", key)
			}
		}
	}
	return nil
}

// Keys returns the rule keys in sorted order.
func (t RuleTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup finds the rule for a feature id: an exact id entry first, then the
// feature type, then the default rule. It reports the key that matched.
func (t RuleTable) Lookup(featureID string) (string, FeatureTypeRule) {
	if r, ok := t[featureID]; ok {
		return featureID, r
	}
	if ft := FeatureType(featureID); ft != featureID {
		if r, ok := t[ft]; ok {
			return ft, r
		}
	}
	return DefaultRuleKey, t[DefaultRuleKey]
}

// IsRotating reports whether featureType has a rotation rule.
func (t RuleTable) IsRotating(featureType string) bool {
	r, ok := t[featureType]
	return ok && r.Rotation != nil
}

// FeatureType returns the type token of a feature id, the part before the
// first underscore.
func FeatureType(featureID string) string {
	if i := strings.IndexByte(featureID, '_'); i >= 0 {
		return featureID[:i]
	}
	return featureID
}
