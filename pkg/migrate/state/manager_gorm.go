package state

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormManager struct {
	DB *gorm.DB
}

// NewSqliteGormManager : state kept in the sqlite file at path
func NewSqliteGormManager(path string) (*GormManager, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open state db %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one writer at a time, sqlite would answer "database is locked" otherwise
	sqlDB.SetMaxOpenConns(1)
	return NewGormManager(db)
}

// NewGormManager : state kept in db, the table is created when missing
func NewGormManager(db *gorm.DB) (*GormManager, error) {
	if err := db.AutoMigrate(&CycleLog{}); err != nil {
		return nil, fmt.Errorf("could not migrate %w", err)
	}
	return &GormManager{DB: db}, nil
}

func (m *GormManager) InitCycleLog(runID string, trigger string) error {
	return m.DB.Create(&CycleLog{
		RunID:   runID,
		Trigger: trigger,
		Status:  Started,
		Base:    Base{CreatedAt: currentTime(), UpdatedAt: currentTime()},
	}).Error
}

func (m *GormManager) PassedCycle(runID string, rowCount int, elapsed time.Duration) error {
	return m.updateCycleStatus(runID, Success, rowCount, elapsed, nil)
}

func (m *GormManager) FailedCycle(runID string, rowCount int, err error) error {
	return m.updateCycleStatus(runID, Failed, rowCount, 0, err)
}

func (m *GormManager) GetCycleLog(runID string) (*CycleLog, error) {
	var cycle CycleLog
	err := m.DB.Where("run_id = ?", runID).First(&cycle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (m *GormManager) RecentCycles(limit int) ([]*CycleLog, error) {
	cycles := []*CycleLog{}
	q := m.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

func (m *GormManager) OnShutDownEv() error {
	return m.DB.Model(&CycleLog{}).
		Where("status = ?", Started).
		Updates(map[string]interface{}{"status": Aborted, "updated_at": currentTime()}).Error
}

func (m *GormManager) updateCycleStatus(runID string, status RunLogState, rows int, elapsed time.Duration, err error) error {
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	res := m.DB.Model(&CycleLog{}).Where("run_id = ?", runID).Updates(map[string]interface{}{
		"status":      status,
		"row_count":   rows,
		"duration_ms": elapsed.Milliseconds(),
		"err_msg":     errMsg,
		"updated_at":  currentTime(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no cycle with run id %s", runID)
	}
	return nil
}

func currentTime() *time.Time {
	now := time.Now()
	return &now
}
