package service

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Warning is a non-fatal adjustment made while applying a mutation.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarningPriorityDowngraded marks a requested priority that was lowered.
const WarningPriorityDowngraded = "PRIORITY_DOWNGRADED"

// PriorityCounter reports how many open tickets of a branch sit at each priority.
type PriorityCounter interface {
	PriorityCounts(ctx context.Context, branchID string) (map[domain.TicketPriority]int, error)
}

var priorityRoles = map[domain.TicketPriority][]domain.Role{
	domain.TicketPriorityUrgent:   {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleManager, domain.RoleManagerIT},
	domain.TicketPriorityCritical: {domain.RoleSuperAdmin, domain.RoleAdmin},
}

// priorityShare caps the percentage of a branch's open tickets at each priority.
var priorityShare = map[domain.TicketPriority]int{
	domain.TicketPriorityHigh:     25,
	domain.TicketPriorityUrgent:   4,
	domain.TicketPriorityCritical: 1,
}

// PriorityPolicy lowers requested priorities the actor may not set or that a
// branch already uses too often.
type PriorityPolicy struct {
	counts PriorityCounter
	logger *zap.Logger
}

// NewPriorityPolicy builds a policy. A nil counter disables the distribution check.
func NewPriorityPolicy(counts PriorityCounter, logger *zap.Logger) *PriorityPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriorityPolicy{counts: counts, logger: logger}
}

// RoleMayUse reports whether role may set priority.
func RoleMayUse(role domain.Role, priority domain.TicketPriority) bool {
	allowed, restricted := priorityRoles[priority]
	return !restricted || slices.Contains(allowed, role)
}

// Resolve returns the priority to store for a request to move ticket to requested.
func (p *PriorityPolicy) Resolve(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, requested domain.TicketPriority) (domain.TicketPriority, []Warning, error) {
	if requested == ticket.Priority {
		return requested, nil, nil
	}

	var warnings []Warning
	result := requested
	if !RoleMayUse(actor.Role, result) {
		lowered := highestAllowedBelow(actor.Role, result)
		warnings = append(warnings, Warning{
			Code: WarningPriorityDowngraded,
			Message: fmt.Sprintf("role %s may not set %s priority; using %s",
				actor.Role, requested, lowered),
		})
		result = lowered
	}

	limit, capped := priorityShare[result]
	if !capped || p.counts == nil || result == ticket.Priority {
		return result, warnings, nil
	}
	counts, err := p.counts.PriorityCounts(ctx, ticket.BranchID)
	if err != nil {
		return "", nil, fmt.Errorf("priority distribution for branch %s: %w", ticket.BranchID, err)
	}
	share := sharePercent(counts, result)
	if share > limit {
		lowered := nextLower(result)
		p.logger.Info("priority downgraded by branch distribution",
			zap.String("ticket_id", ticket.ID),
			zap.String("branch_id", ticket.BranchID),
			zap.String("requested", string(result)),
			zap.Int("share_percent", share),
		)
		warnings = append(warnings, Warning{
			Code: WarningPriorityDowngraded,
			Message: fmt.Sprintf("%s priority usage is at %d%% (limit %d%%); using %s",
				result, share, limit, lowered),
		})
		result = lowered
	}
	return result, warnings, nil
}

func sharePercent(counts map[domain.TicketPriority]int, priority domain.TicketPriority) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(counts[priority]) / float64(total) * 100))
}

func highestAllowedBelow(role domain.Role, priority domain.TicketPriority) domain.TicketPriority {
	for rank := priority.Rank() - 1; rank >= 0; rank-- {
		candidate := domain.PriorityLadder[rank]
		if RoleMayUse(role, candidate) {
			return candidate
		}
	}
	return domain.TicketPriorityLow
}

func nextLower(priority domain.TicketPriority) domain.TicketPriority {
	if rank := priority.Rank(); rank > 0 {
		return domain.PriorityLadder[rank-1]
	}
	return domain.TicketPriorityLow
}
