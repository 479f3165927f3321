package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonHarassment    ReportReason = "harassment"
	ReportReasonInappropriate ReportReason = "inappropriate"
	ReportReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportReasonSpam, ReportReasonHarassment, ReportReasonInappropriate, ReportReasonOther:
		return true
	}
	return false
}

const ReportStatusPending = "pending"

type Report struct {
	ID                uuid.UUID    `json:"id"`
	ReporterID        string       `json:"reporter_id"`
	ReportedMessageID *uuid.UUID   `json:"reported_message_id,omitempty"`
	ReportedUserID    string       `json:"reported_user_id"`
	Reason            ReportReason `json:"reason"`
	Description       *string      `json:"description,omitempty"`
	Status            string       `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
}
