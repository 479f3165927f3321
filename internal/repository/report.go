package repository

import (
	"context"

	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type ReportRepository interface {
	// Create fails with Conflict when the reporter already reported the
	// message, or for user reports (no message), the user.
	Create(ctx context.Context, report *domain.Report) error
}

type reportRepository struct {
	db  DB
	log logger.Logger
}

func NewReportRepository(db DB, log logger.Logger) ReportRepository {
	return &reportRepository{db: db, log: log}
}

func (r *reportRepository) Create(ctx context.Context, report *domain.Report) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reports (id, reporter_id, reported_message_id, reported_user_id, reason, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, report.ID, report.ReporterID, report.ReportedMessageID, report.ReportedUserID,
		string(report.Reason), report.Description, report.Status, report.CreatedAt)
	if err != nil {
		return storageError(r.log, err, "create report", "reporter_id", report.ReporterID, "reported_user_id", report.ReportedUserID)
	}
	return nil
}
