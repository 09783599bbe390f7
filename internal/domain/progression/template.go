package progression

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// ValidateTemplate checks step definitions before they are stored or materialized
func ValidateTemplate(specs []entity.StepSpec) error {
	if len(specs) == 0 {
		return ErrEmptyWorkflow
	}

	byOrder := make(map[int][]entity.StepSpec)
	for i, spec := range specs {
		if spec.Order < 1 {
			return fmt.Errorf("%w: step %d has order %d, orders start at 1", ErrInvalidTemplate, i+1, spec.Order)
		}
		if err := spec.Approver.Validate(); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrInvalidTemplate, i+1, err)
		}
		if spec.Escalation != nil && spec.Escalation.AfterHours < 1 {
			return fmt.Errorf("%w: step %d escalation needs after_hours >= 1", ErrInvalidTemplate, i+1)
		}
		byOrder[spec.Order] = append(byOrder[spec.Order], spec)
	}

	for order, group := range byOrder {
		if len(group) < 2 {
			continue
		}
		for _, spec := range group {
			if !spec.IsParallel {
				return fmt.Errorf("%w: order %d is shared by %d steps but not all are parallel", ErrInvalidTemplate, order, len(group))
			}
		}
	}
	return nil
}

// SortedSpecs returns the specs in ascending order, keeping template position within a group
func SortedSpecs(specs []entity.StepSpec) []entity.StepSpec {
	sorted := make([]entity.StepSpec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

func materialize(requestID string, spec entity.StepSpec, userID string) *entity.ApprovalStep {
	requireAll := true
	if spec.IsParallel && spec.RequireAllParallel != nil {
		requireAll = *spec.RequireAllParallel
	}

	var escalation *entity.Escalation
	if spec.Escalation != nil {
		e := *spec.Escalation
		escalation = &e
	}

	return &entity.ApprovalStep{
		ID:                 uuid.NewString(),
		RequestID:          requestID,
		Name:               spec.Name,
		Order:              spec.Order,
		Approver:           entity.ApproverRef{UserID: userID, Spec: spec.Approver},
		IsParallel:         spec.IsParallel,
		RequireAllParallel: requireAll,
		RequireComment:     spec.RequireComment,
		Status:             entity.StepStatusWaiting,
		Escalation:         escalation,
	}
}
