package database

import (
	"time"

	"gorm.io/gorm"
)

// DecodeRunRepository handles run database operations
type DecodeRunRepository struct {
	db *gorm.DB
}

// NewDecodeRunRepository creates a new run repository
func NewDecodeRunRepository(db *gorm.DB) *DecodeRunRepository {
	return &DecodeRunRepository{db: db}
}

// Create adds a new run record
func (r *DecodeRunRepository) Create(run *DecodeRun) error {
	return r.db.Create(run).Error
}

// Finish stores the final counters of a run
func (r *DecodeRunRepository) Finish(run *DecodeRun) error {
	return r.db.Model(&DecodeRun{}).
		Where("run_id = ?", run.RunID).
		Updates(map[string]interface{}{
			"blocks":    run.Blocks,
			"bytes_in":  run.BytesIn,
			"bytes_out": run.BytesOut,
			"duration":  run.Duration,
			"error":     run.Error,
			"end_time":  run.EndTime,
		}).Error
}

// GetByRunID retrieves a run by its run ID
func (r *DecodeRunRepository) GetByRunID(runID string) (*DecodeRun, error) {
	var run DecodeRun
	if err := r.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecent retrieves the most recent N runs
func (r *DecodeRunRepository) GetRecent(limit int) ([]DecodeRun, error) {
	var runs []DecodeRun
	err := r.db.Order("start_time DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRecentPaginated retrieves runs with pagination
func (r *DecodeRunRepository) GetRecentPaginated(page, perPage int) ([]DecodeRun, int64, error) {
	var runs []DecodeRun
	var total int64

	// Count total records
	if err := r.db.Model(&DecodeRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get paginated results
	offset := (page - 1) * perPage
	err := r.db.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&runs).Error

	return runs, total, err
}

// DeleteOlderThan deletes runs started before the given time
func (r *DecodeRunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&DecodeRun{})
	return result.RowsAffected, result.Error
}

// BERRepository handles BER measurement database operations
type BERRepository struct {
	db *gorm.DB
}

// NewBERRepository creates a new BER repository
func NewBERRepository(db *gorm.DB) *BERRepository {
	return &BERRepository{db: db}
}

// Create adds a new measurement
func (r *BERRepository) Create(m *BERMeasurement) error {
	return r.db.Create(m).Error
}

// GetByRun retrieves the measurements of one run ordered by Eb/N0
func (r *BERRepository) GetByRun(runID string) ([]BERMeasurement, error) {
	var points []BERMeasurement
	err := r.db.Where("run_id = ?", runID).
		Order("ebn0_db ASC").
		Find(&points).Error
	return points, err
}

// GetRecent retrieves the most recent N measurements
func (r *BERRepository) GetRecent(limit int) ([]BERMeasurement, error) {
	var points []BERMeasurement
	err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&points).Error
	return points, err
}
