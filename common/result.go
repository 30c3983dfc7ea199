package common

import "fmt"

// OperationResult represents the result of an operation with detailed information
type OperationResult struct {
	Applied bool
	Message string
	Count   int   // Number of items affected (sections removed, debug entries cleared)
	Removed int64 // Bytes taken out of the file
	Err     error
	Details []OperationDetail
}

// NewSkipped creates a result for skipped operations
func NewSkipped(reason string) *OperationResult {
	return &OperationResult{Message: reason}
}

// NewFailed creates a skipped result carrying the error that caused it
func NewFailed(err error) *OperationResult {
	return &OperationResult{Message: err.Error(), Err: err}
}

// NewApplied creates a result for applied operations
func NewApplied(message string, count int) *OperationResult {
	return &OperationResult{
		Applied: true,
		Message: message,
		Count:   count,
	}
}

// AddDetail records one step of the operation.
func (r *OperationResult) AddDetail(message string, count int, risky bool) {
	r.Details = append(r.Details, OperationDetail{Message: message, Count: count, IsRisky: risky})
}

// String returns a human-readable representation
func (r *OperationResult) String() string {
	if r.Applied {
		switch {
		case r.Count > 0 && r.Removed > 0:
			return fmt.Sprintf("APPLIED (%s, %d items, %d bytes removed)", r.Message, r.Count, r.Removed)
		case r.Count > 0:
			return fmt.Sprintf("APPLIED (%s, %d items)", r.Message, r.Count)
		}
		return fmt.Sprintf("APPLIED (%s)", r.Message)
	}
	if r.Err != nil {
		return fmt.Sprintf("FAILED (%s)", r.Message)
	}
	return fmt.Sprintf("SKIPPED (%s)", r.Message)
}
