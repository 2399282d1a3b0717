package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

func ticketFor(creator string, assignee *string) *domain.Ticket {
	return &domain.Ticket{ID: "t-1", CreatedByID: creator, AssignedToID: assignee, Status: domain.TicketStatusOpen}
}

func ptr(s string) *string { return &s }

func TestPermittedMatchesTable(t *testing.T) {
	all := domain.AllFields()
	reclassify := domain.NewFieldSet(domain.FieldCategory, domain.FieldIssueClassification)

	tests := []struct {
		name   string
		actor  domain.Actor
		ticket *domain.Ticket
		want   domain.FieldSet
	}{
		{"super admin on foreign ticket", domain.Actor{ID: "a", Role: domain.RoleSuperAdmin}, ticketFor("x", nil), all},
		{"admin on foreign ticket", domain.Actor{ID: "a", Role: domain.RoleAdmin}, ticketFor("x", ptr("y")), all},
		{"assigned technician", domain.Actor{ID: "tech", Role: domain.RoleTechnician}, ticketFor("x", ptr("tech")), all},
		{"unassigned technician", domain.Actor{ID: "tech", Role: domain.RoleTechnician}, ticketFor("x", ptr("other")), reclassify},
		{"technician on unassigned ticket", domain.Actor{ID: "tech", Role: domain.RoleTechnician}, ticketFor("x", nil), reclassify},
		{"assigned security analyst", domain.Actor{ID: "sa", Role: domain.RoleSecurityAnalyst}, ticketFor("x", ptr("sa")), all},
		{"unassigned security analyst", domain.Actor{ID: "sa", Role: domain.RoleSecurityAnalyst}, ticketFor("x", nil), reclassify},
		{"manager not creator", domain.Actor{ID: "m", Role: domain.RoleManager}, ticketFor("x", nil), reclassify},
		{"manager creator", domain.Actor{ID: "m", Role: domain.RoleManager}, ticketFor("m", nil),
			domain.NewFieldSet(domain.FieldCategory, domain.FieldIssueClassification, domain.FieldTitle, domain.FieldDescription, domain.FieldPriority)},
		{"it manager creator", domain.Actor{ID: "m", Role: domain.RoleManagerIT}, ticketFor("m", nil),
			domain.NewFieldSet(domain.FieldCategory, domain.FieldIssueClassification, domain.FieldTitle, domain.FieldDescription, domain.FieldPriority)},
		{"requester creator", domain.Actor{ID: "u", Role: domain.RoleUser}, ticketFor("u", nil), domain.NewFieldSet(domain.FieldTitle, domain.FieldDescription)},
		{"requester not creator", domain.Actor{ID: "u", Role: domain.RoleUser}, ticketFor("x", nil), domain.NewFieldSet()},
		{"agent creator", domain.Actor{ID: "ag", Role: domain.RoleAgent}, ticketFor("ag", nil), domain.NewFieldSet(domain.FieldTitle, domain.FieldDescription)},
		{"unknown role", domain.Actor{ID: "z", Role: "AUDITOR"}, ticketFor("z", ptr("z")), domain.NewFieldSet()},
	}

	evaluator := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluator.Permitted(tt.actor, tt.ticket)
			assert.Equal(t, tt.want.Sorted(), got.Sorted())
		})
	}
}

func TestAllowedFieldsNeverGrantsSuperset(t *testing.T) {
	evaluator := NewEvaluator(nil)
	roles := []domain.Role{
		domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleTechnician, domain.RoleSecurityAnalyst,
		domain.RoleManager, domain.RoleManagerIT, domain.RoleUser, domain.RoleAgent,
	}
	tickets := map[string]*domain.Ticket{
		"own+assigned": ticketFor("actor", ptr("actor")),
		"own":          ticketFor("actor", nil),
		"foreign":      ticketFor("x", ptr("y")),
	}
	for _, role := range roles {
		for name, ticket := range tickets {
			actor := domain.Actor{ID: "actor", Role: role}
			permitted := evaluator.Permitted(actor, ticket)
			for _, field := range domain.MutableFields {
				got, err := evaluator.AllowedFields(actor, ticket, domain.NewFieldSet(field))
				if permitted.Has(field) {
					require.NoError(t, err, "%s/%s/%s", role, name, field)
					assert.Equal(t, []domain.Field{field}, got.Sorted())
				} else {
					require.Error(t, err, "%s/%s/%s", role, name, field)
					assert.Nil(t, got)
				}
			}
		}
	}
}

func TestUnassignedTechnicianStatusChangeDenied(t *testing.T) {
	evaluator := NewEvaluator(nil)
	actor := domain.Actor{ID: "tech", Role: domain.RoleTechnician}

	_, err := evaluator.AllowedFields(actor, ticketFor("x", ptr("someone-else")), domain.NewFieldSet(domain.FieldStatus))

	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeForbidden, de.Code)
	assert.Equal(t, []string{"status"}, de.Details["fields"])
}

func TestRequesterPartialRequestRejectedWhole(t *testing.T) {
	evaluator := NewEvaluator(nil)
	actor := domain.Actor{ID: "u", Role: domain.RoleUser}

	got, err := evaluator.AllowedFields(actor, ticketFor("u", nil), domain.NewFieldSet(domain.FieldTitle, domain.FieldStatus))

	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"status"}, apperrors.ToDomainError(err).Details["fields"])
}

func TestUnassignedTechnicianMayReclassify(t *testing.T) {
	evaluator := NewEvaluator(nil)
	actor := domain.Actor{ID: "tech", Role: domain.RoleTechnician}
	requested := domain.NewFieldSet(domain.FieldCategory, domain.FieldIssueClassification)

	got, err := evaluator.AllowedFields(actor, ticketFor("x", nil), requested)

	require.NoError(t, err)
	assert.Equal(t, requested.Sorted(), got.Sorted())
}

func TestCustomTable(t *testing.T) {
	evaluator := NewEvaluator(map[domain.Role]Rule{
		domain.RoleUser: func(domain.Actor, *domain.Ticket) domain.FieldSet {
			return domain.NewFieldSet(domain.FieldRootCause)
		},
	})
	_, err := evaluator.AllowedFields(domain.Actor{ID: "u", Role: domain.RoleAdmin}, ticketFor("u", nil), domain.NewFieldSet(domain.FieldTitle))
	assert.Error(t, err)

	got, err := evaluator.AllowedFields(domain.Actor{ID: "u", Role: domain.RoleUser}, ticketFor("x", nil), domain.NewFieldSet(domain.FieldRootCause))
	require.NoError(t, err)
	assert.True(t, got.Has(domain.FieldRootCause))
}
