package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type ConversationRepository interface {
	// CreateDM inserts conv with both memberships, or returns the DM that
	// already exists for the pair. created reports which happened.
	CreateDM(ctx context.Context, conv *domain.Conversation, userA, userB string) (existing *domain.Conversation, created bool, err error)
	FindDM(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	// CreateGroup inserts the conversation and every membership atomically.
	CreateGroup(ctx context.Context, conv *domain.Conversation, members []*domain.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	GetMember(ctx context.Context, conversationID uuid.UUID, userID string) (*domain.Member, error)
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]*domain.Member, error)
	AddMember(ctx context.Context, member *domain.Member) error
	// RemoveMember refuses to remove the last admin of a conversation.
	RemoveMember(ctx context.Context, conversationID uuid.UUID, userID string) error
}

var errDMExists = errors.New("dm already exists")

const conversationColumns = `c.id, c.kind, c.title, c.created_by, c.created_at, c.updated_at, c.last_seq`

type conversationRepository struct {
	db  DB
	log logger.Logger
}

func NewConversationRepository(db DB, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var kind string
	err := row.Scan(&conv.ID, &kind, &conv.Title, &conv.CreatedBy, &conv.CreatedAt, &conv.UpdatedAt, &conv.LastSeq)
	if err != nil {
		return nil, err
	}
	conv.Kind = domain.ConversationKind(kind)
	return conv, nil
}

func (r *conversationRepository) CreateDM(ctx context.Context, conv *domain.Conversation, userA, userB string) (*domain.Conversation, bool, error) {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, kind, dm_key, created_by, created_at, updated_at, last_seq)
			VALUES ($1, 'dm', $2, $3, $4, $4, 0)
			ON CONFLICT (dm_key) DO NOTHING
		`, conv.ID, domain.DMKey(userA, userB), conv.CreatedBy, conv.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errDMExists
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, 'member', $4), ($1, $3, 'member', $4)
		`, conv.ID, userA, userB, conv.CreatedAt)
		return err
	})

	if errors.Is(err, errDMExists) {
		// lost the race (or the DM predates this call): re-query
		existing, err := r.FindDM(ctx, userA, userB)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, storageError(r.log, err, "create dm", "user_a", userA, "user_b", userB)
	}

	conv.Kind = domain.ConversationKindDM
	conv.UpdatedAt = conv.CreatedAt
	conv.Members = []*domain.Member{
		{ConversationID: conv.ID, UserID: userA, Role: domain.MemberRoleMember, JoinedAt: conv.CreatedAt},
		{ConversationID: conv.ID, UserID: userB, Role: domain.MemberRoleMember, JoinedAt: conv.CreatedAt},
	}
	return conv, true, nil
}

func (r *conversationRepository) FindDM(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_members a ON a.conversation_id = c.id AND a.user_id = $1
		JOIN conversation_members b ON b.conversation_id = c.id AND b.user_id = $2
		WHERE c.kind = 'dm'
		LIMIT 1
	`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, userA, userB))
	if err != nil {
		return nil, storageError(r.log, err, "find dm", "user_a", userA, "user_b", userB)
	}
	conv.Members, err = r.ListMembers(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) CreateGroup(ctx context.Context, conv *domain.Conversation, members []*domain.Member) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, kind, title, created_by, created_at, updated_at, last_seq)
			VALUES ($1, 'group', $2, $3, $4, $4, 0)
		`, conv.ID, conv.Title, conv.CreatedBy, conv.CreatedAt)
		if err != nil {
			return err
		}

		for _, m := range members {
			_, err = tx.Exec(ctx, `
				INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
				VALUES ($1, $2, $3, $4)
			`, conv.ID, m.UserID, string(m.Role), m.JoinedAt)
			if err != nil {
				// returning rolls the conversation row back with it
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError(r.log, err, "create group", "conversation_id", conv.ID)
	}

	conv.Kind = domain.ConversationKindGroup
	conv.UpdatedAt = conv.CreatedAt
	conv.Members = members
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = $1`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, storageError(r.log, err, "get conversation", "conversation_id", id)
	}
	return conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, storageError(r.log, err, "list conversations", "user_id", userID)
	}
	defer rows.Close()

	var (
		conversations []*domain.Conversation
		ids           []uuid.UUID
		byID          = make(map[uuid.UUID]*domain.Conversation)
	)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, storageError(r.log, err, "scan conversation", "user_id", userID)
		}
		conversations = append(conversations, conv)
		ids = append(ids, conv.ID)
		byID[conv.ID] = conv
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.log, err, "list conversations", "user_id", userID)
	}
	if len(ids) == 0 {
		return conversations, nil
	}

	memberRows, err := r.db.Query(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_members
		WHERE conversation_id = ANY($1::uuid[])
		ORDER BY joined_at, user_id
	`, uuidStrings(ids))
	if err != nil {
		return nil, storageError(r.log, err, "list members", "user_id", userID)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		m, err := scanMember(memberRows)
		if err != nil {
			return nil, storageError(r.log, err, "scan member", "user_id", userID)
		}
		if conv := byID[m.ConversationID]; conv != nil {
			conv.Members = append(conv.Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, storageError(r.log, err, "list members", "user_id", userID)
	}
	return conversations, nil
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	m := &domain.Member{}
	var role string
	if err := row.Scan(&m.ConversationID, &m.UserID, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = domain.MemberRole(role)
	return m, nil
}

func (r *conversationRepository) GetMember(ctx context.Context, conversationID uuid.UUID, userID string) (*domain.Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID))
	if err != nil {
		return nil, storageError(r.log, err, "get member", "conversation_id", conversationID, "user_id", userID)
	}
	return m, nil
}

func (r *conversationRepository) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]*domain.Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id
	`, conversationID)
	if err != nil {
		return nil, storageError(r.log, err, "list members", "conversation_id", conversationID)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, storageError(r.log, err, "scan member", "conversation_id", conversationID)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.log, err, "list members", "conversation_id", conversationID)
	}
	return members, nil
}

func (r *conversationRepository) AddMember(ctx context.Context, member *domain.Member) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`, member.ConversationID, member.UserID, string(member.Role), member.JoinedAt)
	if err != nil {
		return storageError(r.log, err, "add member", "conversation_id", member.ConversationID, "user_id", member.UserID)
	}
	return nil
}

func (r *conversationRepository) RemoveMember(ctx context.Context, conversationID uuid.UUID, userID string) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		// serialise membership changes for this conversation so two admins
		// cannot remove each other concurrently
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&locked); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM conversation_members m
			WHERE m.conversation_id = $1 AND m.user_id = $2
			  AND (m.role <> 'admin'
			       OR (SELECT count(*) FROM conversation_members
			           WHERE conversation_id = $1 AND role = 'admin') > 1)
		`, conversationID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)
		`, conversationID, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return apperrors.Conflict("cannot remove the last admin of a conversation")
		}
		return apperrors.NotFound("member %s not found", userID)
	})
	if err != nil {
		return storageError(r.log, err, "remove member", "conversation_id", conversationID, "user_id", userID)
	}
	return nil
}
