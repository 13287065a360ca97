// Package entitlement answers whether a paid feature is unlocked.
//
// Purchases and subscriptions live outside this service; the ledger only
// consumes the answer through Checker.
package entitlement

import "strings"

// Feature names a gated capability.
type Feature string

const (
	FeatureCSVImport  Feature = "csv_import"
	FeatureDataExport Feature = "data_export"
)

// Checker is the entitlement oracle.
type Checker interface {
	IsEntitled(f Feature) bool
}

// Static is a fixed feature set, typically built from configuration.
type Static map[Feature]bool

// NewStatic enables the named features. Unknown names are kept so that
// newer features can be granted before code checks them.
func NewStatic(features ...string) Static {
	s := make(Static, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			s[Feature(f)] = true
		}
	}
	return s
}

// IsEntitled implements Checker.
func (s Static) IsEntitled(f Feature) bool {
	return s[f]
}

// All grants every feature.
type All struct{}

// IsEntitled implements Checker.
func (All) IsEntitled(Feature) bool { return true }
