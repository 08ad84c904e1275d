package retrieval

import "fmt"

// ValidationError rejects a request before any external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TenantIsolationViolation means the store returned a candidate owned by
// someone other than the requester. It is a defect, never a user error.
type TenantIsolationViolation struct {
	RequestedOwner string
	FoundOwner     string
	EntryID        string
}

func (e *TenantIsolationViolation) Error() string {
	return fmt.Sprintf("tenant isolation violated: entry %s of owner %q returned for owner %q",
		e.EntryID, e.FoundOwner, e.RequestedOwner)
}
