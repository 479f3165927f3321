package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

type reactionRepository struct {
	s *store
}

func (r *reactionRepository) Toggle(_ context.Context, messageID uuid.UUID, userID, emoji string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[messageID]; !ok {
		return false, apperrors.NotFound("message %s not found", messageID)
	}

	list := r.s.reactions[messageID]
	for i, reaction := range list {
		if reaction.UserID == userID && reaction.Emoji == emoji {
			r.s.reactions[messageID] = append(list[:i:i], list[i+1:]...)
			return false, nil
		}
	}
	r.s.reactions[messageID] = append(list, &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: at,
	})
	return true, nil
}

func (r *reactionRepository) ListByMessage(_ context.Context, messageID uuid.UUID) ([]*domain.Reaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := r.s.reactions[messageID]
	out := make([]*domain.Reaction, 0, len(list))
	for _, reaction := range list {
		cp := *reaction
		out = append(out, &cp)
	}
	return out, nil
}

type readReceiptRepository struct {
	s *store
}

func (r *readReceiptRepository) MarkRead(_ context.Context, conversationID uuid.UUID, userID string, readAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var written int64
	for _, id := range r.s.byConversation[conversationID] {
		msg := r.s.messages[id]
		if msg.SenderID == userID || msg.IsDeleted() {
			continue
		}
		key := receiptKey{messageID: id, userID: userID}
		if existing, ok := r.s.receipts[key]; ok {
			if !existing.ReadAt.Before(readAt) {
				continue
			}
			existing.ReadAt = readAt
		} else {
			r.s.receipts[key] = &domain.ReadReceipt{MessageID: id, UserID: userID, ReadAt: readAt}
		}
		written++
	}
	return written, nil
}

func (r *readReceiptRepository) ListByMessages(_ context.Context, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[uuid.UUID]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	receipts := []*domain.ReadReceipt{}
	for key, receipt := range r.s.receipts {
		if _, ok := wanted[key.messageID]; ok {
			cp := *receipt
			receipts = append(receipts, &cp)
		}
	}
	sortReceipts(receipts)
	return receipts, nil
}

type reportRepository struct {
	s *store
}

func (r *reportRepository) Create(_ context.Context, report *domain.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := reportKey{reporterID: report.ReporterID}
	if report.ReportedMessageID != nil {
		if _, ok := r.s.messages[*report.ReportedMessageID]; !ok {
			return apperrors.NotFound("message %s not found", *report.ReportedMessageID)
		}
		key.messageID = *report.ReportedMessageID
	} else {
		key.userID = report.ReportedUserID
	}
	if _, ok := r.s.reports[key]; ok {
		if report.ReportedMessageID != nil {
			return apperrors.Conflict("message already reported")
		}
		return apperrors.Conflict("user already reported")
	}
	cp := *report
	if report.ReportedMessageID != nil {
		id := *report.ReportedMessageID
		cp.ReportedMessageID = &id
	}
	r.s.reports[key] = &cp
	return nil
}

func sortReceipts(receipts []*domain.ReadReceipt) {
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].ReadAt.Equal(receipts[j].ReadAt) {
			return receipts[i].UserID < receipts[j].UserID
		}
		return receipts[i].ReadAt.Before(receipts[j].ReadAt)
	})
}
