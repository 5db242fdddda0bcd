package flows

import (
	"context"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ValidID   func(string) bool
	Revoke    func(ctx context.Context, refreshID string) error
	RevokeAll func(ctx context.Context, accountID string) (int, error)
}

// RunLogout revokes one refresh id. Ids that could never have been issued
// are accepted without a store call, because the session they name is
// already gone.
func RunLogout(ctx context.Context, refreshID string, deps LogoutDeps) error {
	if deps.ValidID != nil && !deps.ValidID(refreshID) {
		return nil
	}
	return deps.Revoke(ctx, refreshID)
}

// RunLogoutAll revokes every session of accountID.
func RunLogoutAll(ctx context.Context, accountID string, deps LogoutDeps) (int, error) {
	if accountID == "" {
		return 0, nil
	}
	return deps.RevokeAll(ctx, accountID)
}
