package migrate

import "fmt"

// Phase : step of a transfer where it failed
type Phase string

const (
	PhaseExtract      Phase = "extract"
	PhaseInsert       Phase = "insert"
	PhaseTargetCommit Phase = "target_commit"
	PhaseSourceCommit Phase = "source_commit"
)

// TransferError : a transfer did not complete. Except for PhaseSourceCommit the
// source transaction was rolled back and the target received nothing.
type TransferError struct {
	Phase Phase
	// RowCount : rows fetched from the source before the failure
	RowCount int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed during %s (%d rows fetched): %v", e.Phase, e.RowCount, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Retryable : false once the target committed, a new attempt would write the rows twice
func (e *TransferError) Retryable() bool {
	return e.Phase != PhaseSourceCommit
}
