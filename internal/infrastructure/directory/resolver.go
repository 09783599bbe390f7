package directory

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
	"go.uber.org/zap"
)

// maxChainDepth bounds manager chain walks so a cycle in the directory cannot loop forever
const maxChainDepth = 16

// Resolver resolves approver specifications against the organization directory
type Resolver struct {
	repo   port.DirectoryRepository
	logger *zap.Logger
}

// NewResolver creates a directory-backed resolver
func NewResolver(repo port.DirectoryRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger,
	}
}

// Resolve returns the single user matching spec, or "" when nobody matches
func (r *Resolver) Resolve(ctx context.Context, spec entity.ApproverSpec, org progression.OrgContext) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	switch spec.Kind {
	case entity.ApproverExplicitUser:
		user, err := r.repo.GetUser(ctx, spec.UserID)
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", nil
		}
		return user.ID, nil

	case entity.ApproverRole:
		users, err := r.repo.ListByRole(ctx, org.OrgID, spec.Role)
		if err != nil {
			return "", err
		}
		if len(users) == 0 {
			return "", nil
		}
		if len(users) > 1 {
			r.logger.Warn("Role matches several users, using the first",
				zap.String("role", spec.Role),
				zap.String("org_id", org.OrgID),
				zap.Int("matches", len(users)))
		}
		return users[0].ID, nil

	case entity.ApproverDepartmentHead:
		deptID := spec.DepartmentID
		if deptID == "" {
			deptID = org.DepartmentID
		}
		if deptID == "" {
			return "", nil
		}
		dept, err := r.repo.GetDepartment(ctx, deptID)
		if err != nil {
			return "", err
		}
		if dept == nil {
			return "", nil
		}
		return dept.HeadUserID, nil

	case entity.ApproverDirectManager:
		return chainAt(org.ManagerChain, 0), nil

	case entity.ApproverSkipLevel:
		return chainAt(org.ManagerChain, spec.Levels), nil
	}

	return "", fmt.Errorf("%w: unknown kind %q", entity.ErrInvalidApproverSpec, spec.Kind)
}

// OrgContextFor builds the organizational context of userID, walking the manager chain
func (r *Resolver) OrgContextFor(ctx context.Context, userID string) (progression.OrgContext, error) {
	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return progression.OrgContext{}, err
	}
	if user == nil {
		return progression.OrgContext{}, fmt.Errorf("%w: user %s", port.ErrNotFound, userID)
	}

	org := progression.OrgContext{
		OrgID:        user.OrgID,
		DepartmentID: user.DepartmentID,
	}

	seen := map[string]bool{user.ID: true}
	next := user.ManagerID
	for next != "" && len(org.ManagerChain) < maxChainDepth {
		if seen[next] {
			r.logger.Warn("Manager chain contains a cycle", zap.String("user_id", userID), zap.String("at", next))
			break
		}
		seen[next] = true
		org.ManagerChain = append(org.ManagerChain, next)

		manager, err := r.repo.GetUser(ctx, next)
		if err != nil {
			return progression.OrgContext{}, err
		}
		if manager == nil {
			break
		}
		next = manager.ManagerID
	}

	return org, nil
}

func chainAt(chain []string, i int) string {
	if i < 0 || i >= len(chain) {
		return ""
	}
	return chain[i]
}

// Verify interface compliance
var _ progression.Resolver = (*Resolver)(nil)
