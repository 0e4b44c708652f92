package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified
		FROM users WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, is_email_verified
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Organizations

func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, description, created_by)
		VALUES ($1, $2, $3, $4)
	`, org.ID, org.Name, org.Description, org.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM organizations WHERE id=$1
	`, orgID).Scan(&org.ID, &org.Name, &org.Description, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PostgresStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.description, o.created_by, o.created_at
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Description, &org.CreatedBy, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, org)
	}
	return items, rows.Err()
}

func (s *PostgresStore) AddOrganizationMember(ctx context.Context, orgID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("add organization member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]OrganizationMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.organization_id, m.user_id, m.role, m.created_at, u.email, u.display_name
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list organization members: %w", err)
	}
	defer rows.Close()

	items := make([]OrganizationMember, 0)
	for rows.Next() {
		var member OrganizationMember
		if err := rows.Scan(&member.OrganizationID, &member.UserID, &member.Role, &member.CreatedAt, &member.UserEmail, &member.UserName); err != nil {
			return nil, fmt.Errorf("scan organization member: %w", err)
		}
		items = append(items, member)
	}
	return items, rows.Err()
}

// MemberRole returns the caller's role in the organization, or "" when the
// caller is not a member.
func (s *PostgresStore) MemberRole(ctx context.Context, orgID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM organization_members WHERE organization_id=$1 AND user_id=$2
	`, orgID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read member role: %w", err)
	}
	return role, nil
}

// Invites

func (s *PostgresStore) CreateInvite(ctx context.Context, invite OrganizationInvite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_invites (id, organization_id, email, token, status, invited_by, expires_at)
		VALUES ($1, $2, LOWER($3), $4, 'pending', $5, $6)
	`, invite.ID, invite.OrganizationID, invite.Email, invite.Token, invite.InvitedBy, invite.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPendingInvite(ctx context.Context, token string) (OrganizationInvite, error) {
	var invite OrganizationInvite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, token, status, invited_by, created_at, expires_at
		FROM organization_invites
		WHERE token=$1 AND status='pending' AND expires_at > NOW()
	`, token).Scan(&invite.ID, &invite.OrganizationID, &invite.Email, &invite.Token, &invite.Status, &invite.InvitedBy, &invite.CreatedAt, &invite.ExpiresAt)
	if err != nil {
		return OrganizationInvite{}, err
	}
	return invite, nil
}

func (s *PostgresStore) MarkInviteAccepted(ctx context.Context, inviteID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE organization_invites SET status='accepted' WHERE id=$1`, inviteID)
	if err != nil {
		return fmt.Errorf("mark invite accepted: %w", err)
	}
	return nil
}

// Boards

func (s *PostgresStore) CreateBoard(ctx context.Context, board Board) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, name, description, organization_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, board.ID, board.Name, board.Description, board.OrganizationID, board.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, organization_id, created_by, created_at
		FROM boards WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Name, &board.Description, &board.OrganizationID, &board.CreatedBy, &board.CreatedAt)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsByOrganization(ctx context.Context, orgID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, organization_id, created_by, created_at
		FROM boards WHERE organization_id=$1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var board Board
		if err := rows.Scan(&board.ID, &board.Name, &board.Description, &board.OrganizationID, &board.CreatedBy, &board.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, board)
	}
	return items, rows.Err()
}

// Lists

func (s *PostgresStore) CreateList(ctx context.Context, list List) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, title, board_id, position)
		VALUES ($1, $2, $3, $4)
	`, list.ID, list.Title, list.BoardID, list.Position)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListsByBoard(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, board_id, COALESCE(position, 0)
		FROM lists WHERE board_id=$1
		ORDER BY position
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		var list List
		if err := rows.Scan(&list.ID, &list.Title, &list.BoardID, &list.Position); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, list)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateListPosition(ctx context.Context, listID string, position int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE lists SET position=$2 WHERE id=$1`, listID, position)
	if err != nil {
		return fmt.Errorf("update list position: %w", err)
	}
	return nil
}

// Cards

func (s *PostgresStore) CreateCard(ctx context.Context, card Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, title, description, list_id, board_id, position, is_complete, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, card.ID, card.Title, card.Description, card.ListID, card.BoardID, card.Position, card.IsComplete, card.UserID)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID string) (Card, error) {
	var card Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(description, ''), list_id, board_id, COALESCE(position, 0), is_complete, user_id
		FROM cards WHERE id=$1
	`, cardID).Scan(&card.ID, &card.Title, &card.Description, &card.ListID, &card.BoardID, &card.Position, &card.IsComplete, &card.UserID)
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *PostgresStore) CardsByBoard(ctx context.Context, boardID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), list_id, board_id, COALESCE(position, 0), is_complete, user_id
		FROM cards WHERE board_id=$1
		ORDER BY list_id, position
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.ID, &card.Title, &card.Description, &card.ListID, &card.BoardID, &card.Position, &card.IsComplete, &card.UserID); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, card)
	}
	return items, rows.Err()
}

// UpdateCardPlacement rewrites a card's list and position, the two fields a
// reorder may change.
func (s *PostgresStore) UpdateCardPlacement(ctx context.Context, cardID, listID string, position int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cards SET list_id=$2, position=$3 WHERE id=$1`, cardID, listID, position)
	if err != nil {
		return fmt.Errorf("update card placement: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCardCompletion(ctx context.Context, cardID string, isComplete bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cards SET is_complete=$2 WHERE id=$1`, cardID, isComplete)
	if err != nil {
		return fmt.Errorf("update card completion: %w", err)
	}
	return nil
}

// Card activities. Append and read only: activity rows are immutable and the
// store intentionally exposes no update or delete for them.

func (s *PostgresStore) InsertCardActivity(ctx context.Context, entry CardActivity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_activities (id, card_id, action_type, description, details, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.CardID, entry.ActionType, entry.Description, entry.Details, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert card activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCardActivities(ctx context.Context, cardID string) ([]CardActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, COALESCE(action_type, ''), COALESCE(description, ''), COALESCE(details, ''), COALESCE(created_by, ''), created_at
		FROM card_activities
		WHERE card_id=$1
		ORDER BY created_at DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card activities: %w", err)
	}
	defer rows.Close()

	items := make([]CardActivity, 0)
	for rows.Next() {
		var entry CardActivity
		if err := rows.Scan(&entry.ID, &entry.CardID, &entry.ActionType, &entry.Description, &entry.Details, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card activity: %w", err)
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}
