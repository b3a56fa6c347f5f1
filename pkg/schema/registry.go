// Package schema declares, per IPEDS dataset vintage, which source columns
// feed which output fields.
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source names used by the registry and the default join plan
const (
	SourceDirectory  = "hd"
	SourceAdmissions = "adm"
	SourceEnrollment = "ef"
	SourceAid        = "sfa"
	SourceCost       = "ic_ay"
	SourceGrad4      = "gr"
	SourceGrad6      = "gr200"
	SourceCharacter  = "ic_rv"
)

// Registry is the explicit field mapping for one dataset vintage
type Registry struct {
	Vintage    string           `yaml:"vintage"`
	KeyColumn  string           `yaml:"key_column"`
	Directory  DirectoryFields  `yaml:"directory"`
	Admissions AdmissionsFields `yaml:"admissions"`
	Enrollment EnrollmentFields `yaml:"enrollment"`
	Aid        AidFields        `yaml:"aid"`
	Cost       CostFields       `yaml:"cost"`
	Grad4      GraduationFields `yaml:"grad_4yr"`
	Grad6      GraduationFields `yaml:"grad_6yr"`
}

type DirectoryFields struct {
	Name    string `yaml:"name"`
	Alias   string `yaml:"alias"`
	Website string `yaml:"website"`
	City    string `yaml:"city"`
	State   string `yaml:"state"`
	Zip     string `yaml:"zip"`
	Locale  string `yaml:"locale"`
	Control string `yaml:"control"`
	Sector  string `yaml:"sector"`
}

type AdmissionsFields struct {
	Admitted  string `yaml:"admitted"`
	Applied   string `yaml:"applied"`
	SATVerb25 string `yaml:"sat_verbal_25"`
	SATMath25 string `yaml:"sat_math_25"`
	SATVerb75 string `yaml:"sat_verbal_75"`
	SATMath75 string `yaml:"sat_math_75"`
	ACT25     string `yaml:"act_25"`
	ACT75     string `yaml:"act_75"`
}

// EnrollmentFields describes the fall enrollment source. The gender
// columns are explicit; the prefix/suffix convention is only the
// fallback used when none of them are present.
type EnrollmentFields struct {
	LevelColumn    string            `yaml:"level_column"`
	UndergradLevel float64           `yaml:"undergrad_level"`
	Total          string            `yaml:"total"`
	Race           map[string]string `yaml:"race"`
	Male           []string          `yaml:"male"`
	Female         []string          `yaml:"female"`
	GenderPrefix   string            `yaml:"gender_prefix"`
	MaleSuffix     string            `yaml:"male_suffix"`
	FemaleSuffix   string            `yaml:"female_suffix"`
}

// AidFields describes the student financial aid source
type AidFields struct {
	PellColumn  string   `yaml:"pell_column"`
	PellPattern string   `yaml:"pell_pattern"`
	PellExclude []string `yaml:"pell_exclude"`
}

type CostFields struct {
	TuitionInState    string `yaml:"tuition_in_state"`
	TuitionOutOfState string `yaml:"tuition_out_of_state"`
	FeesInState       string `yaml:"fees_in_state"`
	FeesOutOfState    string `yaml:"fees_out_of_state"`
	AvgCost           string `yaml:"avg_cost"`
}

// GraduationFields describes one graduation-rate cohort source
type GraduationFields struct {
	TypeColumn     string   `yaml:"type_column"`
	TypeValue      float64  `yaml:"type_value"`
	CohortColumn   string   `yaml:"cohort_column"`
	CohortValue    float64  `yaml:"cohort_value"`
	Completers     string   `yaml:"completers"`
	CohortSize     []string `yaml:"cohort_size"`
	CohortPatterns []string `yaml:"cohort_patterns"`
	CohortExclude  []string `yaml:"cohort_exclude"` // Pattern matches that are codes, not counts
}

// FilterColumns returns the columns used to scope the source
func (g GraduationFields) FilterColumns() []string {
	var cols []string
	if g.TypeColumn != "" {
		cols = append(cols, g.TypeColumn)
	}
	if g.CohortColumn != "" {
		cols = append(cols, g.CohortColumn)
	}
	return cols
}

// IsCohortSizeCandidate reports whether a column name looks like a cohort
// size by naming convention, ignoring the source's own filter columns and
// the excluded code columns.
func (g GraduationFields) IsCohortSizeCandidate(column string) bool {
	for _, filter := range g.FilterColumns() {
		if column == filter {
			return false
		}
	}
	for _, excluded := range g.CohortExclude {
		if strings.EqualFold(column, excluded) {
			return false
		}
	}
	upper := strings.ToUpper(column)
	for _, pattern := range g.CohortPatterns {
		if strings.Contains(upper, strings.ToUpper(pattern)) {
			return true
		}
	}
	return false
}

// IsMaleColumn reports whether a column follows the male breakdown convention
func (e EnrollmentFields) IsMaleColumn(column string) bool {
	return e.MaleSuffix != "" && strings.HasPrefix(column, e.GenderPrefix) &&
		strings.HasSuffix(column, e.MaleSuffix)
}

// IsFemaleColumn reports whether a column follows the female breakdown convention
func (e EnrollmentFields) IsFemaleColumn(column string) bool {
	return e.FemaleSuffix != "" && strings.HasPrefix(column, e.GenderPrefix) &&
		strings.HasSuffix(column, e.FemaleSuffix)
}

// RaceKeys returns the race/ethnicity output keys in a stable order
func (e EnrollmentFields) RaceKeys() []string {
	keys := make([]string, 0, len(e.Race))
	for key := range e.Race {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RaceColumns returns the total plus every race/ethnicity headcount column
func (e EnrollmentFields) RaceColumns() []string {
	cols := []string{e.Total}
	for _, key := range e.RaceKeys() {
		cols = append(cols, e.Race[key])
	}
	return cols
}

// IsPellCandidate reports whether a column is a Pell recipient count by
// naming convention
func (a AidFields) IsPellCandidate(column string) bool {
	for _, excluded := range a.PellExclude {
		if column == excluded {
			return false
		}
	}
	return a.PellPattern != "" &&
		strings.Contains(strings.ToUpper(column), strings.ToUpper(a.PellPattern))
}

// Validate ensures the registry can drive a merge
func (r *Registry) Validate() error {
	if r.KeyColumn == "" {
		return errors.New("registry key column is required")
	}
	if r.Enrollment.Total == "" {
		return errors.New("registry enrollment total column is required")
	}
	if r.Grad4.Completers == "" || r.Grad6.Completers == "" {
		return errors.New("registry graduation completers columns are required")
	}
	return nil
}

var vintages = map[string]func() Registry{
	"2022": IPEDS2022,
}

// Lookup returns the built-in registry for a vintage
func Lookup(vintage string) (Registry, error) {
	build, ok := vintages[vintage]
	if !ok {
		return Registry{}, fmt.Errorf("unknown IPEDS vintage %q", vintage)
	}
	return build(), nil
}

// LoadFile reads a registry from YAML. Fields left out of the file keep
// the values of the base registry.
func LoadFile(path string, base Registry) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	reg := base
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}

	if err := reg.Validate(); err != nil {
		return Registry{}, fmt.Errorf("invalid schema file %s: %w", path, err)
	}
	return reg, nil
}
