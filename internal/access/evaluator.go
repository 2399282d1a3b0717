// Package access decides which ticket fields an actor may change.
package access

import (
	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// Rule computes the allowed field set for one role. A nil set denies everything.
type Rule func(actor domain.Actor, ticket *domain.Ticket) domain.FieldSet

var (
	reclassifyFields = domain.NewFieldSet(domain.FieldCategory, domain.FieldIssueClassification)
	managerOwnFields = domain.NewFieldSet(domain.FieldTitle, domain.FieldDescription, domain.FieldPriority)
	requesterFields  = domain.NewFieldSet(domain.FieldTitle, domain.FieldDescription)
)

func adminRule(domain.Actor, *domain.Ticket) domain.FieldSet {
	return domain.AllFields()
}

func assigneeRule(actor domain.Actor, ticket *domain.Ticket) domain.FieldSet {
	if ticket.IsAssignedTo(actor.ID) {
		return domain.AllFields()
	}
	return reclassifyFields
}

func managerRule(actor domain.Actor, ticket *domain.Ticket) domain.FieldSet {
	if ticket.CreatedByID == actor.ID {
		return reclassifyFields.Union(managerOwnFields)
	}
	return reclassifyFields
}

func requesterRule(actor domain.Actor, ticket *domain.Ticket) domain.FieldSet {
	if ticket.CreatedByID == actor.ID {
		return requesterFields
	}
	return nil
}

// DefaultTable is the permission table applied to ticket mutations.
var DefaultTable = map[domain.Role]Rule{
	domain.RoleSuperAdmin:      adminRule,
	domain.RoleAdmin:           adminRule,
	domain.RoleTechnician:      assigneeRule,
	domain.RoleSecurityAnalyst: assigneeRule,
	domain.RoleManager:         managerRule,
	domain.RoleManagerIT:       managerRule,
	domain.RoleUser:            requesterRule,
	domain.RoleAgent:           requesterRule,
}

// Evaluator applies a permission table.
type Evaluator struct {
	table map[domain.Role]Rule
}

// NewEvaluator builds an evaluator over table, falling back to DefaultTable.
func NewEvaluator(table map[domain.Role]Rule) *Evaluator {
	if table == nil {
		table = DefaultTable
	}
	return &Evaluator{table: table}
}

// Permitted returns the full set of fields actor may change on ticket.
func (e *Evaluator) Permitted(actor domain.Actor, ticket *domain.Ticket) domain.FieldSet {
	rule, ok := e.table[actor.Role]
	if !ok {
		return domain.NewFieldSet()
	}
	allowed := rule(actor, ticket)
	if allowed == nil {
		return domain.NewFieldSet()
	}
	return allowed
}

// AllowedFields returns requested when every field is permitted. Otherwise the
// whole request is rejected with an AccessDenied error naming the offending fields.
func (e *Evaluator) AllowedFields(actor domain.Actor, ticket *domain.Ticket, requested domain.FieldSet) (domain.FieldSet, error) {
	permitted := e.Permitted(actor, ticket)
	denied := requested.Minus(permitted)
	if len(denied) > 0 {
		names := make([]string, 0, len(denied))
		for _, f := range denied {
			names = append(names, string(f))
		}
		return nil, apperrors.NewAccessDenied(names)
	}
	return requested, nil
}
