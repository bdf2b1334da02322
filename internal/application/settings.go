package application

import (
	"fmt"
	"maps"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-recipes/infrastructure/techniques"
	"github.com/ahrav/go-recipes/internal/domain"
)

// Well-known settings sections and key suffixes.
const (
	SectionGeneral = "general"
	SectionChef    = "chef"
	SectionCritic  = "critic"

	// SectionColumnGroups names the cleaver groups: group name to the
	// feature names or path.Match patterns the group claims.
	SectionColumnGroups = "cleaver_groups"

	stepsSuffix      = "_steps"
	techniquesSuffix = "_techniques"
	parametersSuffix = "_parameters"
)

// Settings is the parsed two-level settings mapping: section name to key to
// value. Section names and keys are case folded when parsed. A Settings
// value is immutable; accessors return copies.
//
// The layout mirrors a project settings file:
//
//	general:
//	  seed: 43
//	  parallelize: true
//	chef:
//	  chef_steps: [scaler, splitter, modeler]
//	  scaler_techniques: [normalize, minmax]
//	  splitter_techniques: train_test
//	  modeler_techniques: centroid
//	critic:
//	  data_to_review: test
//	  measurer_techniques: [accuracy, f1, brier_loss]
//	train_test_parameters:
//	  test_size: 0.25
type Settings struct {
	sections map[string]map[string]any
}

// ParseSettings decodes YAML settings data.
func ParseSettings(data []byte) (*Settings, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return NewSettings(raw), nil
}

// NewSettings builds Settings from an already decoded mapping. Section and
// key names are case folded; values are kept as given.
func NewSettings(raw map[string]map[string]any) *Settings {
	folder := cases.Fold()
	sections := make(map[string]map[string]any, len(raw))
	for name, section := range raw {
		name = strings.TrimSpace(folder.String(name))
		dst, ok := sections[name]
		if !ok {
			dst = make(map[string]any, len(section))
			sections[name] = dst
		}
		for key, value := range section {
			dst[strings.TrimSpace(folder.String(key))] = value
		}
	}
	return &Settings{sections: sections}
}

// Section returns a copy of the named section.
func (s *Settings) Section(name string) (map[string]any, bool) {
	section, ok := s.sections[foldIdentifier(name)]
	if !ok {
		return nil, false
	}
	return maps.Clone(section), true
}

// Sections returns the section names present.
func (s *Settings) Sections() []string {
	names := make([]string, 0, len(s.sections))
	for name := range s.sections {
		names = append(names, name)
	}
	return names
}

// Steps returns the ordered stage list declared as "<section>_steps"
// inside section.
func (s *Settings) Steps(section string) ([]string, error) {
	section = foldIdentifier(section)
	key := section + stepsSuffix
	value, ok := s.sections[section][key]
	if !ok {
		return nil, domain.NewConfigurationError(section+"."+key, "missing step list")
	}
	steps, err := identifierList(value)
	if err != nil {
		return nil, domain.NewConfigurationError(section+"."+key, err.Error())
	}
	return steps, nil
}

// Techniques returns the technique identifiers declared as
// "<stage>_techniques" inside section. A missing key yields an empty list.
func (s *Settings) Techniques(section, stage string) ([]string, error) {
	section = foldIdentifier(section)
	key := foldIdentifier(stage) + techniquesSuffix
	value, ok := s.sections[section][key]
	if !ok {
		return nil, nil
	}
	techniques, err := identifierList(value)
	if err != nil {
		return nil, domain.NewConfigurationError(section+"."+key, err.Error())
	}
	return techniques, nil
}

// Parameters returns the options for a technique. The
// "<technique>_parameters" section wins; "<stage>_parameters" is the
// fallback and is reported as shared, since it serves every technique of
// the stage. The result is a fresh map and may be modified.
func (s *Settings) Parameters(stage, technique string) (params map[string]any, shared bool) {
	if section, ok := s.sections[foldIdentifier(technique)+parametersSuffix]; ok {
		return maps.Clone(section), false
	}
	if section, ok := s.sections[foldIdentifier(stage)+parametersSuffix]; ok {
		return maps.Clone(section), true
	}
	return map[string]any{}, false
}

// General decodes, defaults and validates the general section.
func (s *Settings) General() (GeneralSettings, error) {
	cfg := defaultGeneralSettings()
	if err := s.decodeSection(SectionGeneral, &cfg); err != nil {
		return GeneralSettings{}, err
	}
	if err := validateStruct("GeneralSettings", cfg); err != nil {
		return GeneralSettings{}, err
	}
	return cfg, nil
}

// Critic decodes, defaults and validates the critic section.
func (s *Settings) Critic() (CriticSettings, error) {
	cfg := defaultCriticSettings()
	if err := s.decodeSection(SectionCritic, &cfg); err != nil {
		return CriticSettings{}, err
	}
	cfg.DataToReview = foldIdentifier(cfg.DataToReview)
	cfg.PrimaryMetric = foldIdentifier(cfg.PrimaryMetric)
	if cfg.PrimaryMetric == "" && len(cfg.Metrics) > 0 {
		cfg.PrimaryMetric = cfg.Metrics[0]
	}
	if err := validateStruct("CriticSettings", cfg); err != nil {
		return CriticSettings{}, err
	}
	return cfg, nil
}

// decodeSection round-trips the named section through YAML into out, so
// that defaults already present in out survive for missing keys. Technique
// lists written as comma-separated strings are normalized first.
func (s *Settings) decodeSection(name string, out any) error {
	section, ok := s.sections[name]
	if !ok {
		return nil
	}
	normalized := make(map[string]any, len(section))
	for key, value := range section {
		if strings.HasSuffix(key, techniquesSuffix) || strings.HasSuffix(key, stepsSuffix) {
			list, err := identifierList(value)
			if err != nil {
				return domain.NewConfigurationError(name+"."+key, err.Error())
			}
			value = list
		}
		normalized[key] = value
	}

	data, err := yaml.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("failed to marshal %s settings: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return domain.NewConfigurationError(name, fmt.Sprintf("invalid settings: %v", err))
	}
	return nil
}

// ColumnGroups returns the cleaver groups. Members keep their case since
// they name features. A missing section yields no groups.
func (s *Settings) ColumnGroups() (map[string][]string, error) {
	section, ok := s.sections[SectionColumnGroups]
	if !ok {
		return nil, nil
	}
	groups := make(map[string][]string, len(section))
	for name, value := range section {
		subject := SectionColumnGroups + "." + name
		if name == domain.TechniqueNone || name == techniques.AllGroups {
			return nil, domain.NewConfigurationError(subject, "reserved cleaver name")
		}
		members, err := stringList(value)
		if err != nil {
			return nil, domain.NewConfigurationError(subject, err.Error())
		}
		if len(members) == 0 {
			return nil, domain.NewConfigurationError(subject, "group lists no features")
		}
		for _, m := range members {
			if _, err := path.Match(m, ""); err != nil {
				return nil, domain.NewConfigurationError(subject, fmt.Sprintf("pattern %q: %v", m, err))
			}
		}
		groups[name] = members
	}
	return groups, nil
}

// identifierList accepts a YAML sequence or a comma-separated string and
// returns folded, trimmed identifiers.
func identifierList(value any) ([]string, error) {
	items, err := stringList(value)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, foldIdentifier(item))
	}
	return out, nil
}

// stringList accepts a YAML sequence or a comma-separated string and
// returns the trimmed, non-empty items.
func stringList(value any) ([]string, error) {
	var items []string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		items = strings.Split(v, ",")
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item %v is %T, want string", item, item)
			}
			items = append(items, str)
		}
	default:
		return nil, fmt.Errorf("value %v is %T, want a list or a comma-separated string", v, v)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// foldIdentifier trims and case folds a settings identifier. A new Caser is
// used per call since Casers are not safe for concurrent use.
func foldIdentifier(s string) string {
	return strings.TrimSpace(cases.Fold().String(s))
}

// GeneralSettings holds the run-wide options from the general section.
type GeneralSettings struct {
	// Seed is injected into every technique that recognizes a "seed"
	// option and does not set one itself.
	Seed int64 `yaml:"seed"`

	// Parallelize enables the worker pool; false runs recipes one at a time.
	Parallelize bool `yaml:"parallelize"`

	// Workers bounds concurrent recipes. Zero selects runtime.NumCPU().
	Workers int `yaml:"workers" validate:"min=0,max=1024"`

	// MaxRecipes rejects plans larger than this. Zero disables the guard.
	MaxRecipes int `yaml:"max_recipes" validate:"min=0"`

	// Snapshots keeps a copy of the ingredients after every chef stage.
	Snapshots bool `yaml:"snapshots"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
}

func defaultGeneralSettings() GeneralSettings {
	return GeneralSettings{
		Seed:        43,
		Parallelize: true,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// CriticSettings configures the critic pipeline and report persistence.
type CriticSettings struct {
	// DataToReview selects the partition the critic scores.
	DataToReview string `yaml:"data_to_review" validate:"required,datasplit"`

	// PositiveClassColumn is the probability column probability metrics read.
	PositiveClassColumn int `yaml:"positive_class_column" validate:"min=0"`

	// PrimaryMetric decides the best recipe. Defaults to the first metric.
	PrimaryMetric string `yaml:"primary_metric"`

	// FloatFormat is a fmt verb for numeric report cells.
	FloatFormat string `yaml:"float_format" validate:"omitempty,startswith=%"`

	// MissingValue marks absent report cells.
	MissingValue string `yaml:"missing_value"`

	JoinPredictions   bool `yaml:"join_predictions"`
	JoinProbabilities bool `yaml:"join_probabilities"`

	Explainers []string `yaml:"explainer_techniques" validate:"unique,dive,required"`
	Rankers    []string `yaml:"ranker_techniques" validate:"unique,dive,required"`
	Metrics    []string `yaml:"measurer_techniques" validate:"unique,dive,required"`
}

func defaultCriticSettings() CriticSettings {
	return CriticSettings{
		DataToReview:        string(domain.SplitTest),
		PositiveClassColumn: 1,
		FloatFormat:         "%.4f",
		MissingValue:        "NA",
		Rankers:             []string{"features", "outcomes"},
		Metrics:             []string{"accuracy"},
	}
}
