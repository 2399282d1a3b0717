package domain

import "sort"

// Field names a mutable ticket attribute as it appears on the wire.
type Field string

const (
	FieldTitle               Field = "title"
	FieldDescription         Field = "description"
	FieldPriority            Field = "priority"
	FieldJustification       Field = "justification"
	FieldStatus              Field = "status"
	FieldAssignedToID        Field = "assignedToId"
	FieldCategory            Field = "category"
	FieldIssueClassification Field = "issueClassification"
	FieldRootCause           Field = "rootCause"
	FieldResolutionNotes     Field = "resolutionNotes"
	FieldEstimatedHours      Field = "estimatedHours"
	FieldActualHours         Field = "actualHours"

	// Side-effect fields are never requested directly.
	FieldResolvedAt     Field = "resolvedAt"
	FieldClosedAt       Field = "closedAt"
	FieldSLAPausedAt    Field = "slaPausedAt"
	FieldSLAPausedTotal Field = "slaPausedTotal"
)

// MutableFields lists every field a request may carry, in canonical order.
var MutableFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldPriority,
	FieldJustification,
	FieldStatus,
	FieldAssignedToID,
	FieldCategory,
	FieldIssueClassification,
	FieldRootCause,
	FieldResolutionNotes,
	FieldEstimatedHours,
	FieldActualHours,
}

// FieldSet is an unordered set of fields.
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from fields.
func NewFieldSet(fields ...Field) FieldSet {
	set := make(FieldSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// AllFields returns a set with every mutable field.
func AllFields() FieldSet { return NewFieldSet(MutableFields...) }

// Has reports membership.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Union returns a new set containing both s and other.
func (s FieldSet) Union(other FieldSet) FieldSet {
	out := make(FieldSet, len(s)+len(other))
	for f := range s {
		out[f] = struct{}{}
	}
	for f := range other {
		out[f] = struct{}{}
	}
	return out
}

// Minus returns the members of s missing from other, sorted.
func (s FieldSet) Minus(other FieldSet) []Field {
	var out []Field
	for f := range s {
		if !other.Has(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sorted returns members in lexical order.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
