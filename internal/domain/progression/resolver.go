package progression

import (
	"context"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// OrgContext is the organizational position of the request creator
type OrgContext struct {
	OrgID        string
	DepartmentID string
	// ManagerChain lists managers bottom-up; ManagerChain[0] is the direct manager
	ManagerChain []string
}

// Resolver turns an approver specification into a concrete user id.
// An empty id with a nil error means the specification matched nobody.
type Resolver interface {
	Resolve(ctx context.Context, spec entity.ApproverSpec, org OrgContext) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, spec entity.ApproverSpec, org OrgContext) (string, error)

// Resolve calls f
func (f ResolverFunc) Resolve(ctx context.Context, spec entity.ApproverSpec, org OrgContext) (string, error) {
	return f(ctx, spec, org)
}
