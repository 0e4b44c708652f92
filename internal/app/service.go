package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"tackboard/api/internal/attach"
	"tackboard/api/internal/auth"
	"tackboard/api/internal/authpw"
	"tackboard/api/internal/config"
	"tackboard/api/internal/email"
	"tackboard/api/internal/export"
	"tackboard/api/internal/rbac"
	"tackboard/api/internal/search"
	"tackboard/api/internal/store"
	"tackboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error

	CreateOrganization(context.Context, store.Organization) error
	GetOrganization(context.Context, string) (store.Organization, error)
	ListOrganizationsForUser(context.Context, string) ([]store.Organization, error)
	AddOrganizationMember(context.Context, string, string, string) error
	ListOrganizationMembers(context.Context, string) ([]store.OrganizationMember, error)
	MemberRole(context.Context, string, string) (string, error)

	CreateInvite(context.Context, store.OrganizationInvite) error
	GetPendingInvite(context.Context, string) (store.OrganizationInvite, error)
	MarkInviteAccepted(context.Context, string) error

	CreateBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	ListBoardsByOrganization(context.Context, string) ([]store.Board, error)

	CreateList(context.Context, store.List) error
	ListsByBoard(context.Context, string) ([]store.List, error)
	UpdateListPosition(context.Context, string, int) error

	CreateCard(context.Context, store.Card) error
	GetCard(context.Context, string) (store.Card, error)
	CardsByBoard(context.Context, string) ([]store.Card, error)
	UpdateCardPlacement(context.Context, string, string, int) error
	UpdateCardCompletion(context.Context, string, bool) error

	InsertCardActivity(context.Context, store.CardActivity) error
	ListCardActivities(context.Context, string) ([]store.CardActivity, error)

	Ping(ctx context.Context) error
}

type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	refresh  refreshStore
	authpw   *authpw.Service
	email    *email.Service
	search   *search.Service
	exporter *export.Service
	attach   *attach.Service

	boardSessionTTL time.Duration
	sessMu          sync.Mutex
	boardSessions   map[string]*boardSession
}

// New wires the service. refresh may be the Postgres store itself when
// Redis is not configured; searchSvc, emailSvc, and attachSvc may be nil.
func New(cfg config.Config, dataStore *store.PostgresStore, refresh refreshStore, searchSvc *search.Service, emailSvc *email.Service, attachSvc *attach.Service) *Service {
	if refresh == nil {
		refresh = dataStore
	}
	ttl := cfg.BoardSessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Service{
		cfg:             cfg,
		store:           dataStore,
		refresh:         refresh,
		authpw:          authpw.NewService(dataStore),
		email:           emailSvc,
		search:          searchSvc,
		attach:          attachSvc,
		boardSessionTTL: ttl,
		boardSessions:   make(map[string]*boardSession),
	}
	s.exporter = export.NewService(&boardExportStore{service: s})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) AttachmentService() *attach.Service {
	return s.attach
}

// CreateSession issues an access token and refresh token for a user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	holder, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The refresh backend may only carry the user ID; claims come from the
	// current user row.
	user, err := s.store.GetUserByID(ctx, holder.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// roleForOrganization returns the viewer's role in an org, or a forbidden
// error when they are not a member.
func (s *Service) roleForOrganization(ctx context.Context, orgID, userID string) (rbac.Role, error) {
	role, err := s.store.MemberRole(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this organization", nil)
	}
	return rbac.Normalize(role), nil
}

func (s *Service) roleForBoard(ctx context.Context, boardID, userID string) (rbac.Role, store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return "", store.Board{}, err
	}
	role, err := s.roleForOrganization(ctx, board.OrganizationID, userID)
	if err != nil {
		return "", store.Board{}, err
	}
	return role, board, nil
}

func requireAction(role rbac.Role, action rbac.Action) error {
	if !rbac.Can(role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) CreateOrganization(ctx context.Context, name, description string, session Session) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	org := store.Organization{
		ID:          util.NewID("org"),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   session.UserID,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	if err := s.store.AddOrganizationMember(ctx, org.ID, session.UserID, string(rbac.RoleOwner)); err != nil {
		return nil, err
	}
	return organizationPayload(org), nil
}

func (s *Service) ListOrganizations(ctx context.Context, session Session) ([]map[string]any, error) {
	orgs, err := s.store.ListOrganizationsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		items = append(items, organizationPayload(org))
	}
	return items, nil
}

// GetOrganizationDetail returns the org with its members and boards.
func (s *Service) GetOrganizationDetail(ctx context.Context, orgID string, session Session) (map[string]any, error) {
	role, err := s.roleForOrganization(ctx, orgID, session.UserID)
	if err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListOrganizationMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoardsByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	memberItems := make([]map[string]any, 0, len(members))
	for _, m := range members {
		memberItems = append(memberItems, map[string]any{
			"userId": m.UserID,
			"name":   m.UserName,
			"email":  m.UserEmail,
			"role":   m.Role,
		})
	}
	boardItems := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		boardItems = append(boardItems, boardPayload(b))
	}

	payload := organizationPayload(org)
	payload["viewerRole"] = string(role)
	payload["members"] = memberItems
	payload["boards"] = boardItems
	return payload, nil
}

// InviteMember creates a pending invite and sends the invite email if SMTP
// is configured. Email failures are logged, never surfaced.
func (s *Service) InviteMember(ctx context.Context, orgID, inviteeEmail string, session Session) (map[string]any, error) {
	role, err := s.roleForOrganization(ctx, orgID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionInvite); err != nil {
		return nil, err
	}

	inviteeEmail = strings.ToLower(strings.TrimSpace(inviteeEmail))
	if inviteeEmail == "" || !strings.Contains(inviteeEmail, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a valid email is required", nil)
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	invite := store.OrganizationInvite{
		ID:             util.NewID("inv"),
		OrganizationID: orgID,
		Email:          inviteeEmail,
		Token:          util.InviteToken(),
		Status:         "pending",
		InvitedBy:      session.UserID,
		ExpiresAt:      time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	inviteLink := strings.TrimRight(s.cfg.AppURL, "/") + "/invite?token=" + invite.Token
	if s.SMTPConfigured() {
		if err := s.email.SendOrganizationInvite(inviteeEmail, email.InviteData{
			OrganizationName: org.Name,
			InviterName:      session.UserName,
			InviteLink:       inviteLink,
		}); err != nil {
			log.Printf("invite: send email to %s: %v", inviteeEmail, err)
		}
	}

	payload := map[string]any{
		"inviteId":  invite.ID,
		"email":     invite.Email,
		"status":    invite.Status,
		"expiresAt": invite.ExpiresAt.Format(time.RFC3339),
	}
	// Dev bypass: expose the token when email delivery is not configured
	if !s.SMTPConfigured() {
		payload["devInviteToken"] = invite.Token
	}
	return payload, nil
}

// AcceptInvite adds the viewer to the invite's organization as a member.
func (s *Service) AcceptInvite(ctx context.Context, token string, session Session) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "token is required", nil)
	}
	invite, err := s.store.GetPendingInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(invite.Email, session.Email) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Invite was issued to a different email", nil)
	}
	if err := s.store.AddOrganizationMember(ctx, invite.OrganizationID, session.UserID, string(rbac.RoleMember)); err != nil {
		return nil, err
	}
	if err := s.store.MarkInviteAccepted(ctx, invite.ID); err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, invite.OrganizationID)
	if err != nil {
		return nil, err
	}
	return organizationPayload(org), nil
}

func (s *Service) CreateBoard(ctx context.Context, orgID, name, description string, session Session) (map[string]any, error) {
	role, err := s.roleForOrganization(ctx, orgID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	board := store.Board{
		ID:             util.NewID("brd"),
		Name:           name,
		Description:    strings.TrimSpace(description),
		OrganizationID: orgID,
		CreatedBy:      session.UserID,
	}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	return boardPayload(board), nil
}

func (s *Service) ListBoards(ctx context.Context, orgID string, session Session) ([]map[string]any, error) {
	role, err := s.roleForOrganization(ctx, orgID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionRead); err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoardsByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		items = append(items, boardPayload(b))
	}
	return items, nil
}

// BoardView returns the board with lists and cards straight from storage,
// in position order.
func (s *Service) BoardView(ctx context.Context, boardID string, session Session) (map[string]any, error) {
	role, board, err := s.roleForBoard(ctx, boardID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionRead); err != nil {
		return nil, err
	}

	lists, err := s.store.ListsByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.CardsByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	payload := boardPayload(board)
	payload["viewerRole"] = string(role)
	payload["lists"] = listsWithCards(lists, cards)
	return payload, nil
}

// SearchCards runs a card search scoped to a board the viewer can read.
func (s *Service) SearchCards(ctx context.Context, q search.Query, session Session) (search.Response, error) {
	if q.FilterBoardID == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "boardId is required", nil)
	}
	role, _, err := s.roleForBoard(ctx, q.FilterBoardID, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	if err := requireAction(role, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// ExportBoard renders a board the viewer can read into PDF or CSV.
func (s *Service) ExportBoard(ctx context.Context, boardID string, format export.Format, session Session) (*export.Result, error) {
	role, _, err := s.roleForBoard(ctx, boardID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionRead); err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Request{BoardID: boardID, Format: format})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
		}
		return nil, err
	}
	return result, nil
}

// recordCardActivity appends to the audit trail. The trail is best-effort:
// a failed insert is logged and the triggering operation still succeeds.
func (s *Service) recordCardActivity(ctx context.Context, entry store.CardActivity) {
	if entry.ID == "" {
		entry.ID = util.NewID("act")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.store.InsertCardActivity(ctx, entry); err != nil {
		log.Printf("activity: record %s for card %s: %v", entry.ActionType, entry.CardID, err)
	}
}

// indexCard pushes a card into the search index, if one is wired.
func (s *Service) indexCard(card store.Card) {
	if s.search == nil {
		return
	}
	s.search.IndexCard(search.CardRecord{
		ID:          card.ID,
		Title:       card.Title,
		Description: card.Description,
		ListID:      card.ListID,
		BoardID:     card.BoardID,
		IsComplete:  card.IsComplete,
	})
}

func organizationPayload(org store.Organization) map[string]any {
	return map[string]any{
		"id":          org.ID,
		"name":        org.Name,
		"description": org.Description,
		"createdBy":   org.CreatedBy,
	}
}

func boardPayload(board store.Board) map[string]any {
	return map[string]any{
		"id":             board.ID,
		"name":           board.Name,
		"description":    board.Description,
		"organizationId": board.OrganizationID,
		"createdBy":      board.CreatedBy,
	}
}

func cardPayload(card store.Card) map[string]any {
	return map[string]any{
		"id":          card.ID,
		"title":       card.Title,
		"description": card.Description,
		"listId":      card.ListID,
		"position":    card.Position,
		"isComplete":  card.IsComplete,
	}
}

func listsWithCards(lists []store.List, cards []store.Card) []map[string]any {
	byList := make(map[string][]map[string]any, len(lists))
	for _, card := range cards {
		byList[card.ListID] = append(byList[card.ListID], cardPayload(card))
	}
	items := make([]map[string]any, 0, len(lists))
	for _, list := range lists {
		cardItems := byList[list.ID]
		if cardItems == nil {
			cardItems = []map[string]any{}
		}
		items = append(items, map[string]any{
			"id":       list.ID,
			"title":    list.Title,
			"position": list.Position,
			"cards":    cardItems,
		})
	}
	return items
}

// boardExportStore adapts the service's storage to the exporter.
type boardExportStore struct {
	service *Service
}

func (b *boardExportStore) LoadBoard(ctx context.Context, boardID string) (export.BoardData, error) {
	board, err := b.service.store.GetBoard(ctx, boardID)
	if err != nil {
		return export.BoardData{}, err
	}
	org, err := b.service.store.GetOrganization(ctx, board.OrganizationID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return export.BoardData{}, err
	}
	lists, err := b.service.store.ListsByBoard(ctx, boardID)
	if err != nil {
		return export.BoardData{}, err
	}
	cards, err := b.service.store.CardsByBoard(ctx, boardID)
	if err != nil {
		return export.BoardData{}, err
	}

	cardsByList := make(map[string][]export.CardData, len(lists))
	for _, card := range cards {
		cardsByList[card.ListID] = append(cardsByList[card.ListID], export.CardData{
			Title:       card.Title,
			Description: card.Description,
			IsComplete:  card.IsComplete,
			Position:    card.Position,
		})
	}

	data := export.BoardData{
		ID:               board.ID,
		Name:             board.Name,
		OrganizationName: org.Name,
		ExportedAt:       time.Now().UTC(),
	}
	for _, list := range lists {
		data.Lists = append(data.Lists, export.ListData{
			Title: list.Title,
			Cards: cardsByList[list.ID],
		})
	}
	return data, nil
}
