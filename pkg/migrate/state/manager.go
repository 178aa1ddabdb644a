package state

import "time"

type RunLogState string

const (
	Started RunLogState = "STARTED"
	Success RunLogState = "SUCCESS"
	Aborted RunLogState = "ABORTED"
	Failed  RunLogState = "FAILED"
)

type Base struct {
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// CycleLog : bookkeeping for one transfer cycle, including the ones that failed
type CycleLog struct {
	RunID      string      `json:"run_id" db:"run_id" gorm:"primaryKey;type:varchar(64)"`
	Trigger    string      `json:"trigger" db:"trigger" gorm:"type:varchar(20)"`
	Status     RunLogState `json:"status" db:"status" gorm:"type:varchar(50);index"`
	RowCount   int         `json:"row_count" db:"row_count"`
	DurationMs int64       `json:"duration_ms" db:"duration_ms"`
	ErrMsg     string      `json:"error,omitempty" db:"err_msg"`
	Base
}

type Manager interface {
	// InitCycleLog : a cycle started
	InitCycleLog(runID string, trigger string) error
	PassedCycle(runID string, rowCount int, elapsed time.Duration) error
	FailedCycle(runID string, rowCount int, err error) error
	GetCycleLog(runID string) (*CycleLog, error)
	// RecentCycles : most recent first
	RecentCycles(limit int) ([]*CycleLog, error)
	// OnShutDownEv : cycles still running are marked aborted
	OnShutDownEv() error
}

// Nop : manager that keeps nothing, used when no state database is configured
type Nop struct{}

func (Nop) InitCycleLog(string, string) error            { return nil }
func (Nop) PassedCycle(string, int, time.Duration) error { return nil }
func (Nop) FailedCycle(string, int, error) error         { return nil }
func (Nop) GetCycleLog(string) (*CycleLog, error)        { return nil, nil }
func (Nop) RecentCycles(int) ([]*CycleLog, error)        { return []*CycleLog{}, nil }
func (Nop) OnShutDownEv() error                          { return nil }
