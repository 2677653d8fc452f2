package repository

import (
	"context"
	"time"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
)

// NotificationRepository is a transactional outbox: jobs are written in the
// same transaction as the state change they announce, so a delivered
// notification always corresponds to a committed effect.
type NotificationRepository struct{}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

const createJobSQL = `
INSERT INTO notification_jobs (kind, topic, payload, run_at)
VALUES ($1, $2, $3, $4)`

func (r *NotificationRepository) CreateJob(ctx context.Context, dbtx db.DBTX, kind, topic string, payload []byte, runAt time.Time) error {
	_, err := dbtx.Exec(ctx, createJobSQL, kind, topic, payload, runAt)
	if err != nil {
		return infra.WrapRepoErr("failed to create notification job", err)
	}
	return nil
}
