package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

func TestReportMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")
	msg := f.send(t, conv.ID, "alice", "buy now")

	_, err := f.services.Report.ReportMessage(ctx, "alice", msg.ID, domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "own message")

	_, err = f.services.Report.ReportMessage(ctx, "bob", msg.ID, "rude", nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.services.Report.ReportMessage(ctx, "bob", msg.ID, domain.ReportReasonOther, strPtr(strings.Repeat("x", 5000)))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.services.Report.ReportMessage(ctx, "mallory", msg.ID, domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	report, err := f.services.Report.ReportMessage(ctx, "bob", msg.ID, domain.ReportReasonSpam, strPtr("  ads "))
	require.NoError(t, err)
	assert.Equal(t, "alice", report.ReportedUserID)
	assert.Equal(t, domain.ReportStatusPending, report.Status)
	assert.Equal(t, "ads", *report.Description)

	_, err = f.services.Report.ReportMessage(ctx, "bob", msg.ID, domain.ReportReasonHarassment, nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestReportUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")
	msg := f.send(t, conv.ID, "alice", "buy now")

	_, err := f.services.Report.ReportUser(ctx, "bob", "bob", domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "self")

	_, err = f.services.Report.ReportUser(ctx, "bob", " ", domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.services.Report.ReportUser(ctx, "", "alice", domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	report, err := f.services.Report.ReportUser(ctx, "bob", "alice", domain.ReportReasonHarassment, strPtr(" "))
	require.NoError(t, err)
	assert.Equal(t, "alice", report.ReportedUserID)
	assert.Nil(t, report.ReportedMessageID)
	assert.Nil(t, report.Description)

	_, err = f.services.Report.ReportUser(ctx, "bob", "alice", domain.ReportReasonSpam, nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// a user report does not block reporting one of their messages
	_, err = f.services.Report.ReportMessage(ctx, "bob", msg.ID, domain.ReportReasonSpam, nil)
	assert.NoError(t, err)
}

func TestRateLimitService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, remaining, err := f.services.RateLimit.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 4-i, remaining)
	}
	allowed, _, err := f.services.RateLimit.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = f.services.RateLimit.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 5, f.services.RateLimit.Limit())
}
