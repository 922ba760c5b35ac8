package models

import "time"

type JobKind string

const (
	JobLobbyIdleCheck       JobKind = "lobby_idle_check"
	JobTournamentSettlement JobKind = "tournament_settlement"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ScheduledJob is a durable one-shot timer. A job is claimed by flipping
// pending -> running with a conditional update, so it fires at most once.
type ScheduledJob struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Kind       JobKind    `json:"kind" gorm:"type:varchar(32);not null;uniqueIndex:idx_job_kind_ref"`
	RefID      string     `json:"ref_id" gorm:"not null;uniqueIndex:idx_job_kind_ref"`
	RunAt      time.Time  `json:"run_at" gorm:"not null;index"`
	Status     JobStatus  `json:"status" gorm:"type:varchar(16);not null;index"`
	Attempts   int        `json:"attempts" gorm:"not null;default:0"`
	LastError  string     `json:"last_error,omitempty" gorm:"type:text"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
