package triage

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/infra-healer/api/schemas"
)

//go:embed detectors.yaml
var defaultRulesYAML []byte

// Detector is one deterministic rule: a set of literal phrases and/or a regular
// expression that, when found in a log, yields a category with a fixed
// confidence.
type Detector struct {
	Name       string           `yaml:"name"`
	Category   schemas.Category `yaml:"category"`
	Confidence float64          `yaml:"confidence"`
	AnyOf      []string         `yaml:"any_of"`
	Pattern    string           `yaml:"pattern"`

	compiled *regexp.Regexp
	phrases  []string
}

func (d *Detector) compile() error {
	if d.Name == "" {
		return fmt.Errorf("detector has no name")
	}
	if !d.Category.IsKnown() {
		return fmt.Errorf("detector %q: unknown category %q", d.Name, d.Category)
	}
	if d.Confidence < 0 || d.Confidence > schemas.MaxConfidence {
		return fmt.Errorf("detector %q: confidence %.2f out of range", d.Name, d.Confidence)
	}
	if len(d.AnyOf) == 0 && d.Pattern == "" {
		return fmt.Errorf("detector %q: needs any_of phrases or a pattern", d.Name)
	}
	if d.Pattern != "" {
		re, err := regexp.Compile("(?i)" + d.Pattern)
		if err != nil {
			return fmt.Errorf("detector %q: %w", d.Name, err)
		}
		d.compiled = re
	}
	d.phrases = make([]string, 0, len(d.AnyOf))
	for _, p := range d.AnyOf {
		d.phrases = append(d.phrases, strings.ToLower(p))
	}
	return nil
}

// matches expects lowered to be the lower-cased log.
func (d *Detector) matches(lowered string) bool {
	for _, p := range d.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return d.compiled != nil && d.compiled.MatchString(lowered)
}

// DomainRules holds the keyword sets that select an analysis path.
type DomainRules struct {
	Terraform    []string `yaml:"terraform"`
	PipelineYAML []string `yaml:"pipeline_yaml"`
	Generic      []string `yaml:"generic"`
}

type rulesFile struct {
	Detectors []Detector  `yaml:"detectors"`
	Domains   DomainRules `yaml:"domains"`
}

// DetectorTable is an ordered list of detectors. Order is the priority: the
// first matching detector wins.
type DetectorTable struct {
	detectors []Detector
}

// LoadRules parses a rules document into a detector table and domain keywords.
func LoadRules(data []byte) (*DetectorTable, DomainRules, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, DomainRules{}, fmt.Errorf("failed to parse detector rules: %w", err)
	}
	table := &DetectorTable{}
	for _, d := range rf.Detectors {
		if err := table.Append(d); err != nil {
			return nil, DomainRules{}, err
		}
	}
	return table, rf.Domains, nil
}

// DefaultRules returns the built-in detector table and domain keywords.
func DefaultRules() (*DetectorTable, DomainRules) {
	table, domains, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("load detectors.yaml: %v", err))
	}
	return table, domains
}

// Append adds a detector at the lowest priority.
func (t *DetectorTable) Append(d Detector) error {
	if err := d.compile(); err != nil {
		return err
	}
	t.detectors = append(t.detectors, d)
	return nil
}

// Len returns the number of detectors.
func (t *DetectorTable) Len() int { return len(t.detectors) }

// Detect returns the hint of the first detector matching log, or nil.
func (t *DetectorTable) Detect(log string) *schemas.PatternHint {
	if t == nil || log == "" {
		return nil
	}
	lowered := strings.ToLower(log)
	for i := range t.detectors {
		d := &t.detectors[i]
		if d.matches(lowered) {
			return &schemas.PatternHint{Rule: d.Name, Category: d.Category, Confidence: d.Confidence}
		}
	}
	return nil
}
