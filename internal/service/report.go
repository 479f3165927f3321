package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const maxReportDescription = 1000

type ReportService interface {
	ReportMessage(ctx context.Context, reporterID string, messageID uuid.UUID, reason domain.ReportReason, description *string) (*domain.Report, error)
	// ReportUser files a report against a user rather than one message.
	// Each reporter may report a given user once.
	ReportUser(ctx context.Context, reporterID, reportedUserID string, reason domain.ReportReason, description *string) (*domain.Report, error)
}

type reportService struct {
	reportRepo    repository.ReportRepository
	messageRepo   repository.MessageRepository
	conversations ConversationService
	log           logger.Logger
	now           func() time.Time
}

func NewReportService(reportRepo repository.ReportRepository, messageRepo repository.MessageRepository, conversations ConversationService, log logger.Logger) ReportService {
	return &reportService{
		reportRepo:    reportRepo,
		messageRepo:   messageRepo,
		conversations: conversations,
		log:           log,
		now:           time.Now,
	}
}

func (s *reportService) ReportMessage(ctx context.Context, reporterID string, messageID uuid.UUID, reason domain.ReportReason, description *string) (*domain.Report, error) {
	if err := requireIdentity(reporterID); err != nil {
		return nil, err
	}
	description, err := validateReport(reason, description)
	if err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", messageID)
	}
	if msg.SenderID == reporterID {
		return nil, apperrors.Forbidden("cannot report your own message")
	}
	if _, err := s.conversations.RequireMember(ctx, msg.ConversationID, reporterID); err != nil {
		return nil, err
	}

	report := &domain.Report{
		ID:                uuid.New(),
		ReporterID:        reporterID,
		ReportedMessageID: &messageID,
		ReportedUserID:    msg.SenderID,
		Reason:            reason,
		Description:       description,
		Status:            domain.ReportStatusPending,
		CreatedAt:         s.now(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.log.Info("Message reported", "report_id", report.ID, "message_id", messageID, "reason", reason)
	return report, nil
}

func (s *reportService) ReportUser(ctx context.Context, reporterID, reportedUserID string, reason domain.ReportReason, description *string) (*domain.Report, error) {
	if err := requireIdentity(reporterID); err != nil {
		return nil, err
	}
	reportedUserID = strings.TrimSpace(reportedUserID)
	if reportedUserID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	if reportedUserID == reporterID {
		return nil, apperrors.Forbidden("cannot report yourself")
	}
	description, err := validateReport(reason, description)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		ID:             uuid.New(),
		ReporterID:     reporterID,
		ReportedUserID: reportedUserID,
		Reason:         reason,
		Description:    description,
		Status:         domain.ReportStatusPending,
		CreatedAt:      s.now(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.log.Info("User reported", "report_id", report.ID, "reported_user_id", reportedUserID, "reason", reason)
	return report, nil
}

// validateReport checks the reason and returns the trimmed description,
// nil when blank.
func validateReport(reason domain.ReportReason, description *string) (*string, error) {
	if !reason.Valid() {
		return nil, apperrors.Validation("reason must be one of spam, harassment, inappropriate, other")
	}
	if description == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*description)
	if utf8.RuneCountInString(trimmed) > maxReportDescription {
		return nil, apperrors.Validation("description must be at most %d characters", maxReportDescription)
	}
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}
