// Package ledger answers read-only questions about a request's ordered step list.
// The active step is always recomputed from step rows; nothing here caches a position.
package ledger

import (
	"sort"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// Group is the set of steps sharing one order value
type Group struct {
	Order int
	Steps []*entity.ApprovalStep
}

// RequireAll reports whether every member must approve before the group advances.
// A single sequential step always requires itself; a group requires all as soon as
// any member asks for it.
func (g Group) RequireAll() bool {
	if len(g.Steps) <= 1 {
		return true
	}
	for _, s := range g.Steps {
		if !s.IsParallel || s.RequireAllParallel {
			return true
		}
	}
	return false
}

// Rejected returns true if any member was rejected
func (g Group) Rejected() bool {
	for _, s := range g.Steps {
		if s.Status == entity.StepStatusRejected {
			return true
		}
	}
	return false
}

// Satisfied returns true once the group no longer blocks the ledger.
// All-mode needs every member approved or skipped; any-mode needs one approval,
// or every member skipped.
func (g Group) Satisfied() bool {
	if len(g.Steps) == 0 || g.Rejected() {
		return false
	}

	allSatisfied := true
	anyApproved := false
	for _, s := range g.Steps {
		if !s.Status.IsSatisfied() {
			allSatisfied = false
		}
		if s.Status == entity.StepStatusApproved {
			anyApproved = true
		}
	}

	if allSatisfied {
		return true
	}
	return !g.RequireAll() && anyApproved
}

// Open returns the members still able to receive a decision
func (g Group) Open() []*entity.ApprovalStep {
	var open []*entity.ApprovalStep
	for _, s := range g.Steps {
		if s.Status.IsOpen() {
			open = append(open, s)
		}
	}
	return open
}

// Contains returns true if the step with the given id belongs to the group
func (g Group) Contains(stepID string) bool {
	for _, s := range g.Steps {
		if s.ID == stepID {
			return true
		}
	}
	return false
}

// Groups partitions the ledger by order, ascending. Members keep their ledger position.
func Groups(steps []*entity.ApprovalStep) []Group {
	if len(steps) == 0 {
		return nil
	}

	ordered := make([]*entity.ApprovalStep, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	var groups []Group
	for _, s := range ordered {
		if n := len(groups); n > 0 && groups[n-1].Order == s.Order {
			groups[n-1].Steps = append(groups[n-1].Steps, s)
			continue
		}
		groups = append(groups, Group{Order: s.Order, Steps: []*entity.ApprovalStep{s}})
	}
	return groups
}

// activeGroup returns the lowest unsatisfied group, or false when the ledger is empty
// or terminal
func activeGroup(steps []*entity.ApprovalStep) (Group, bool) {
	for _, g := range Groups(steps) {
		if g.Rejected() {
			return Group{}, false
		}
		if g.Satisfied() {
			continue
		}
		return g, true
	}
	return Group{}, false
}

// ActiveGroup returns every member of the active group, or nil
func ActiveGroup(steps []*entity.ApprovalStep) []*entity.ApprovalStep {
	g, ok := activeGroup(steps)
	if !ok {
		return nil
	}
	return g.Steps
}

// ActiveStep returns the first undecided member of the active group, or nil
func ActiveStep(steps []*entity.ApprovalStep) *entity.ApprovalStep {
	g, ok := activeGroup(steps)
	if !ok {
		return nil
	}
	if open := g.Open(); len(open) > 0 {
		return open[0]
	}
	return nil
}

// GroupOf returns the group containing the given step
func GroupOf(steps []*entity.ApprovalStep, stepID string) (Group, bool) {
	for _, g := range Groups(steps) {
		if g.Contains(stepID) {
			return g, true
		}
	}
	return Group{}, false
}

// IsRejected returns true if any step was rejected
func IsRejected(steps []*entity.ApprovalStep) bool {
	for _, s := range steps {
		if s.Status == entity.StepStatusRejected {
			return true
		}
	}
	return false
}

// IsApproved returns true for a non-empty ledger whose every group is satisfied
func IsApproved(steps []*entity.ApprovalStep) bool {
	groups := Groups(steps)
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if !g.Satisfied() {
			return false
		}
	}
	return true
}

// IsTerminal returns true if any step was rejected or every group is satisfied.
// An empty ledger is a draft and never terminal.
func IsTerminal(steps []*entity.ApprovalStep) bool {
	return IsRejected(steps) || IsApproved(steps)
}

// PendingFor returns the open active-group step assigned to userID, or nil
func PendingFor(steps []*entity.ApprovalStep, userID string) *entity.ApprovalStep {
	for _, s := range ActiveGroup(steps) {
		if s.Status.IsOpen() && s.Approver.UserID == userID {
			return s
		}
	}
	return nil
}

// DeriveStatus computes the aggregate status from the ledger. Withdrawn is the only
// status that cannot be derived from steps, so it is carried over from current.
func DeriveStatus(steps []*entity.ApprovalStep, current entity.RequestStatus) entity.RequestStatus {
	if current == entity.RequestStatusWithdrawn {
		return current
	}
	if len(steps) == 0 {
		return entity.RequestStatusDraft
	}
	if IsRejected(steps) {
		return entity.RequestStatusRejected
	}
	if IsApproved(steps) {
		return entity.RequestStatusApproved
	}
	for _, s := range steps {
		if s.Status.IsTerminal() {
			return entity.RequestStatusInReview
		}
	}
	return entity.RequestStatusPending
}
