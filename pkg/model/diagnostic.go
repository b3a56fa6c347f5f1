// pkg/model/diagnostic.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage names a pipeline stage
type Stage string

const (
	StageLoad    Stage = "load"
	StageMerge   Stage = "merge"
	StageMap     Stage = "map"
	StageWrite   Stage = "write"
	StageVerify  Stage = "verify"
	StagePublish Stage = "publish"
)

// Category classifies a diagnostic
type Category int

const (
	CategoryNone Category = iota
	CategorySchemaFallback
	CategoryMissingFilterColumn
	CategoryDuplicateKey
	CategoryRowMapping
	CategoryMissingJoinKey
	CategorySourceUnavailable
	CategoryVerification
	CategoryPublish
	CategoryOutputWrite
)

// String returns a string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "None"
	case CategorySchemaFallback:
		return "SchemaFallback"
	case CategoryMissingFilterColumn:
		return "MissingFilterColumn"
	case CategoryDuplicateKey:
		return "DuplicateKey"
	case CategoryRowMapping:
		return "RowMapping"
	case CategoryMissingJoinKey:
		return "MissingJoinKey"
	case CategorySourceUnavailable:
		return "SourceUnavailable"
	case CategoryVerification:
		return "Verification"
	case CategoryPublish:
		return "Publish"
	case CategoryOutputWrite:
		return "OutputWrite"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// IsWarning reports whether the category describes a degraded but valid path
func (c Category) IsWarning() bool {
	switch c {
	case CategorySchemaFallback, CategoryMissingFilterColumn, CategoryDuplicateKey:
		return true
	}
	return false
}

// Diagnostic is a structured warning or error produced by a stage
type Diagnostic struct {
	Stage         Stage
	Category      Category
	Source        string // Source name, when the problem is source-scoped
	InstitutionID string // Institution key, when the problem is row-scoped
	Name          string // Institution name, if known
	Column        string
	Message       string
	Timestamp     time.Time
}

// NewDiagnostic creates a diagnostic with the current timestamp
func NewDiagnostic(stage Stage, category Category, message string) Diagnostic {
	return Diagnostic{
		Stage:     stage,
		Category:  category,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithSource adds source information to the diagnostic
func (d Diagnostic) WithSource(source string) Diagnostic {
	d.Source = source
	return d
}

// WithInstitution adds row information to the diagnostic
func (d Diagnostic) WithInstitution(id, name string) Diagnostic {
	d.InstitutionID = id
	d.Name = name
	return d
}

// WithColumn adds column information to the diagnostic
func (d Diagnostic) WithColumn(column string) Diagnostic {
	d.Column = column
	return d
}

// String returns a formatted diagnostic line
func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s/%s] ", d.Stage, d.Category))

	if d.Source != "" {
		sb.WriteString(fmt.Sprintf("Source: %s ", d.Source))
	}

	if d.InstitutionID != "" {
		sb.WriteString(fmt.Sprintf("Institution: %s ", d.InstitutionID))
		if d.Name != "" {
			sb.WriteString(fmt.Sprintf("(%s) ", d.Name))
		}
	}

	if d.Column != "" {
		sb.WriteString(fmt.Sprintf("Column: %s ", d.Column))
	}

	sb.WriteString(d.Message)
	return sb.String()
}
