package database

import (
	"time"

	"gorm.io/gorm"
)

// Run kinds
const (
	RunKindDecode = "decode"
	RunKindEncode = "encode"
	RunKindBER    = "ber"
)

// DecodeRun records one pass of the CLI over a stream or simulation
type DecodeRun struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	RunID         string    `gorm:"uniqueIndex;size:40;not null" json:"run_id"`
	Kind          string    `gorm:"index;size:16;not null" json:"kind"`
	Constellation string    `gorm:"size:8" json:"constellation"`
	Hierarchy     string    `gorm:"size:8" json:"hierarchy"`
	Priority      string    `gorm:"size:2" json:"priority"`
	CodeRate      string    `gorm:"size:4" json:"code_rate"`
	BlockBits     int       `gorm:"not null" json:"block_bits"`
	LaneWidth     int       `json:"lane_width"`
	Kernel        string    `gorm:"size:8" json:"kernel"`
	Blocks        uint64    `gorm:"default:0" json:"blocks"`
	BytesIn       uint64    `gorm:"default:0" json:"bytes_in"`
	BytesOut      uint64    `gorm:"default:0" json:"bytes_out"`
	Duration      float64   `json:"duration"` // seconds
	Error         string    `gorm:"size:255" json:"error,omitempty"`
	StartTime     time.Time `gorm:"index;not null" json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for DecodeRun
func (DecodeRun) TableName() string {
	return "decode_runs"
}

// BeforeCreate hook to ensure timestamps are set
func (r *DecodeRun) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	return nil
}

// Throughput returns the decoded bit rate in Mbit/s
func (r *DecodeRun) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.BytesOut*8) / r.Duration / 1e6
}

// BERMeasurement is one simulated Eb/N0 point
type BERMeasurement struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	RunID      string    `gorm:"index;size:40;not null" json:"run_id"`
	Mode       string    `gorm:"size:8;not null" json:"mode"` // soft or hard
	CodeRate   string    `gorm:"size:4" json:"code_rate"`
	EbN0dB     float64   `gorm:"column:ebn0_db;index;not null" json:"ebn0_db"`
	Bits       uint64    `gorm:"not null" json:"bits"`
	Errors     uint64    `gorm:"not null" json:"errors"`
	BER        float64   `json:"ber"`
	UnionBound float64   `json:"union_bound"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for BERMeasurement
func (BERMeasurement) TableName() string {
	return "ber_measurements"
}

// BeforeCreate fills in the error rate from the counts
func (m *BERMeasurement) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Bits > 0 {
		m.BER = float64(m.Errors) / float64(m.Bits)
	}
	return nil
}
