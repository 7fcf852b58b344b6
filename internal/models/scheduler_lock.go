package models

import "time"

// SchedulerLock records which instance ran a job for a given slot. The
// unique (job, slot) pair makes the first insert win.
type SchedulerLock struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Job        string    `gorm:"uniqueIndex:idx_scheduler_job_slot;size:100;not null" json:"job"`
	Slot       string    `gorm:"uniqueIndex:idx_scheduler_job_slot;size:64;not null" json:"slot"`
	Holder     string    `gorm:"size:100" json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
