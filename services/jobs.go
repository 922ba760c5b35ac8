package services

import (
	"context"
	"fmt"
	"time"

	"game-wager-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleJob registers a one-shot timer inside the caller's transaction.
// Scheduling the same kind for the same reference twice keeps the first job.
func ScheduleJob(tx *gorm.DB, kind models.JobKind, refID string, runAt time.Time) error {
	job := models.ScheduledJob{
		ID:     uuid.NewString(),
		Kind:   kind,
		RefID:  refID,
		RunAt:  runAt.UTC(),
		Status: models.JobPending,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "ref_id"}},
		DoNothing: true,
	}).Create(&job).Error
	if err != nil {
		return fmt.Errorf("schedule %s for %s: %w", kind, refID, err)
	}
	return nil
}

// DueJobs lists pending jobs whose run time has passed, oldest first.
func DueJobs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", models.JobPending, now.UTC()).
		Order("run_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("load due jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob flips a pending job to running. It returns false when another
// runner claimed it first.
func ClaimJob(ctx context.Context, db *gorm.DB, jobID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND status = ?", jobID, models.JobPending).
		Updates(map[string]interface{}{
			"status":     models.JobRunning,
			"claimed_at": now.UTC(),
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FinishJob records the outcome of a claimed job. Failed jobs are not retried.
func FinishJob(ctx context.Context, db *gorm.DB, jobID string, runErr error, now time.Time) error {
	updates := map[string]interface{}{
		"status":      models.JobDone,
		"finished_at": now.UTC(),
		"last_error":  "",
	}
	if runErr != nil {
		updates["status"] = models.JobFailed
		updates["last_error"] = runErr.Error()
	}
	if err := db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	return nil
}
