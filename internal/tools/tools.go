// Package tools defines the closed enumeration of invokable tool operations
// and the provider families they belong to. Every tool in v1 is a read-only
// query against an external system.
package tools

import (
	"fmt"
	"sort"
)

// ProviderFamily identifies one external-system family.
type ProviderFamily string

const (
	FamilyITSM       ProviderFamily = "itsm"
	FamilyMonitoring ProviderFamily = "monitoring"
)

// Families returns all recognized provider families.
func Families() []ProviderFamily {
	return []ProviderFamily{FamilyITSM, FamilyMonitoring}
}

// ParseFamily validates a provider family string.
func ParseFamily(s string) (ProviderFamily, bool) {
	switch ProviderFamily(s) {
	case FamilyITSM, FamilyMonitoring:
		return ProviderFamily(s), true
	}
	return "", false
}

// ToolKey identifies a single invokable operation.
type ToolKey string

const (
	QueryIncidents ToolKey = "QUERY_INCIDENTS"
	QueryChanges   ToolKey = "QUERY_CHANGES"
	QueryProblems  ToolKey = "QUERY_PROBLEMS"
	QueryAlerts    ToolKey = "QUERY_ALERTS"
)

var toolFamilies = map[ToolKey]ProviderFamily{
	QueryIncidents: FamilyITSM,
	QueryChanges:   FamilyITSM,
	QueryProblems:  FamilyITSM,
	QueryAlerts:    FamilyMonitoring,
}

// Parse validates a tool key string against the closed enumeration.
func Parse(s string) (ToolKey, bool) {
	k := ToolKey(s)
	_, ok := toolFamilies[k]
	return k, ok
}

// Family returns the provider family a tool belongs to.
func (k ToolKey) Family() ProviderFamily {
	return toolFamilies[k]
}

// String implements fmt.Stringer.
func (k ToolKey) String() string { return string(k) }

// All returns every recognized tool key in stable order.
func All() []ToolKey {
	keys := make([]ToolKey, 0, len(toolFamilies))
	for k := range toolFamilies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ValidateKeys parses a loosely-typed list of tool identifiers into a
// deduplicated set. It returns the invalid entries so callers can reject
// the whole write naming the offenders.
func ValidateKeys(raw []string) ([]ToolKey, []string) {
	seen := make(map[ToolKey]bool, len(raw))
	var keys []ToolKey
	var invalid []string
	for _, s := range raw {
		k, ok := Parse(s)
		if !ok {
			invalid = append(invalid, s)
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if len(invalid) > 0 {
		return nil, invalid
	}
	return keys, nil
}

// Catalog describes one tool for administrative listings.
type Catalog struct {
	Key      ToolKey        `json:"key"`
	Family   ProviderFamily `json:"family"`
	ReadOnly bool           `json:"readOnly"`
}

// CatalogEntries returns the tool catalog in stable order.
func CatalogEntries() []Catalog {
	all := All()
	entries := make([]Catalog, 0, len(all))
	for _, k := range all {
		entries = append(entries, Catalog{Key: k, Family: k.Family(), ReadOnly: true})
	}
	return entries
}

// SchemaError is returned by ValidateInput when the input does not conform
// to the tool's schema; the wrapped cause carries the validator detail.
type SchemaError struct {
	Tool  ToolKey
	Cause error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input for %s rejected: %v", e.Tool, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }
