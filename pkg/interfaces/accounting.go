package interfaces

import "context"

// AccountingSource retrieves the raw accounting dump for one job id.
// Supports sacct, pre-captured files and caching wrappers.
type AccountingSource interface {
	// Fetch returns the sacct table text for jobID
	Fetch(ctx context.Context, jobID string) (string, error)
}
