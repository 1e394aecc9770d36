package ui

import "context"

// Approver confirms destructive operations, such as deleting every account
// and transfer before re-seeding the bank.
type Approver interface {
	// RequestApproval asks whether the data in target may be deleted.
	RequestApproval(ctx context.Context, target string) (bool, error)
}

// DefaultForceCountdown is how long ForcedApprover waits before approving.
const DefaultForceCountdown = 5
