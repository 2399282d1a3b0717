package domain

import (
	"reflect"
	"time"
)

// FieldChange is one old/new pair produced by a mutation.
type FieldChange struct {
	Field Field `json:"field"`
	Old   any   `json:"old"`
	New   any   `json:"new"`
}

// ChangeSet is the ordered list of field changes of one mutation.
type ChangeSet []FieldChange

// Has reports whether f changed.
func (c ChangeSet) Has(f Field) bool {
	_, ok := c.Get(f)
	return ok
}

// Get returns the change for f.
func (c ChangeSet) Get(f Field) (FieldChange, bool) {
	for _, ch := range c {
		if ch.Field == f {
			return ch, true
		}
	}
	return FieldChange{}, false
}

// OldValues maps each changed field to its previous value.
func (c ChangeSet) OldValues() map[string]any {
	out := make(map[string]any, len(c))
	for _, ch := range c {
		out[string(ch.Field)] = ch.Old
	}
	return out
}

// NewValues maps each changed field to its new value.
func (c ChangeSet) NewValues() map[string]any {
	out := make(map[string]any, len(c))
	for _, ch := range c {
		out[string(ch.Field)] = ch.New
	}
	return out
}

// Diff compares two ticket states and returns the changes in canonical field order.
// Values are normalized to JSON primitives so the set survives an outbox round trip.
func Diff(before, after *Ticket) ChangeSet {
	pairs := []struct {
		field    Field
		old, new any
	}{
		{FieldTitle, before.Title, after.Title},
		{FieldDescription, before.Description, after.Description},
		{FieldPriority, string(before.Priority), string(after.Priority)},
		{FieldJustification, before.Justification, after.Justification},
		{FieldStatus, string(before.Status), string(after.Status)},
		{FieldAssignedToID, strPtr(before.AssignedToID), strPtr(after.AssignedToID)},
		{FieldCategory, string(before.Category), string(after.Category)},
		{FieldIssueClassification, classification(before.IssueClassification), classification(after.IssueClassification)},
		{FieldRootCause, before.RootCause, after.RootCause},
		{FieldResolutionNotes, before.ResolutionNotes, after.ResolutionNotes},
		{FieldEstimatedHours, floatPtr(before.EstimatedHours), floatPtr(after.EstimatedHours)},
		{FieldActualHours, floatPtr(before.ActualHours), floatPtr(after.ActualHours)},
		{FieldResolvedAt, timePtr(before.ResolvedAt), timePtr(after.ResolvedAt)},
		{FieldClosedAt, timePtr(before.ClosedAt), timePtr(after.ClosedAt)},
		{FieldSLAPausedAt, timePtr(before.SLAPausedAt), timePtr(after.SLAPausedAt)},
		{FieldSLAPausedTotal, before.SLAPausedTotal.Seconds(), after.SLAPausedTotal.Seconds()},
	}
	var out ChangeSet
	for _, p := range pairs {
		if !reflect.DeepEqual(p.old, p.new) {
			out = append(out, FieldChange{Field: p.field, Old: p.old, New: p.new})
		}
	}
	return out
}

func strPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func classification(p *IssueClassification) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func timePtr(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(time.RFC3339Nano)
}
