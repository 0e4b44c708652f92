package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tackboard/api/internal/authpw"
	"tackboard/api/internal/config"
	"tackboard/api/internal/export"
	"tackboard/api/internal/store"
)

type fakeStore struct {
	mu           sync.Mutex
	users        map[string]store.User
	usersByEmail map[string]string
	orgs         map[string]store.Organization
	members      map[string]map[string]string
	invites      map[string]store.OrganizationInvite
	boards       map[string]store.Board
	lists        map[string]store.List
	cards        map[string]store.Card
	activities   []store.CardActivity
	refresh      map[string]string

	placementCalls     []string
	failPlacement      bool
	failInsertActivity bool
	listActivitiesErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]store.User),
		usersByEmail: make(map[string]string),
		orgs:         make(map[string]store.Organization),
		members:      make(map[string]map[string]string),
		invites:      make(map[string]store.OrganizationInvite),
		boards:       make(map[string]store.Board),
		lists:        make(map[string]store.List),
		cards:        make(map[string]store.Card),
		refresh:      make(map[string]string),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.usersByEmail[strings.ToLower(user.Email)] = user.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) CreateOrganization(_ context.Context, org store.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeStore) GetOrganization(_ context.Context, orgID string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[orgID]
	if !ok {
		return store.Organization{}, sql.ErrNoRows
	}
	return org, nil
}

func (f *fakeStore) ListOrganizationsForUser(_ context.Context, userID string) ([]store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orgs []store.Organization
	for orgID, members := range f.members {
		if _, ok := members[userID]; ok {
			orgs = append(orgs, f.orgs[orgID])
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

func (f *fakeStore) AddOrganizationMember(_ context.Context, orgID, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[orgID] == nil {
		f.members[orgID] = make(map[string]string)
	}
	if _, exists := f.members[orgID][userID]; !exists {
		f.members[orgID][userID] = role
	}
	return nil
}

func (f *fakeStore) ListOrganizationMembers(_ context.Context, orgID string) ([]store.OrganizationMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []store.OrganizationMember
	for userID, role := range f.members[orgID] {
		user := f.users[userID]
		members = append(members, store.OrganizationMember{
			OrganizationID: orgID,
			UserID:         userID,
			Role:           role,
			UserEmail:      user.Email,
			UserName:       user.DisplayName,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (f *fakeStore) MemberRole(_ context.Context, orgID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[orgID][userID], nil
}

func (f *fakeStore) CreateInvite(_ context.Context, invite store.OrganizationInvite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[invite.Token] = invite
	return nil
}

func (f *fakeStore) GetPendingInvite(_ context.Context, token string) (store.OrganizationInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invite, ok := f.invites[token]
	if !ok || invite.Status != "pending" || time.Now().After(invite.ExpiresAt) {
		return store.OrganizationInvite{}, sql.ErrNoRows
	}
	return invite, nil
}

func (f *fakeStore) MarkInviteAccepted(_ context.Context, inviteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, invite := range f.invites {
		if invite.ID == inviteID {
			invite.Status = "accepted"
			f.invites[token] = invite
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) CreateBoard(_ context.Context, board store.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[board.ID] = board
	return nil
}

func (f *fakeStore) GetBoard(_ context.Context, boardID string) (store.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	board, ok := f.boards[boardID]
	if !ok {
		return store.Board{}, sql.ErrNoRows
	}
	return board, nil
}

func (f *fakeStore) ListBoardsByOrganization(_ context.Context, orgID string) ([]store.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var boards []store.Board
	for _, board := range f.boards {
		if board.OrganizationID == orgID {
			boards = append(boards, board)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })
	return boards, nil
}

func (f *fakeStore) CreateList(_ context.Context, list store.List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[list.ID] = list
	return nil
}

func (f *fakeStore) ListsByBoard(_ context.Context, boardID string) ([]store.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lists []store.List
	for _, list := range f.lists {
		if list.BoardID == boardID {
			lists = append(lists, list)
		}
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].Position < lists[j].Position })
	return lists, nil
}

func (f *fakeStore) UpdateListPosition(_ context.Context, listID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.lists[listID]
	if !ok {
		return sql.ErrNoRows
	}
	list.Position = position
	f.lists[listID] = list
	return nil
}

func (f *fakeStore) CreateCard(_ context.Context, card store.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[card.ID] = card
	return nil
}

func (f *fakeStore) GetCard(_ context.Context, cardID string) (store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[cardID]
	if !ok {
		return store.Card{}, sql.ErrNoRows
	}
	return card, nil
}

func (f *fakeStore) CardsByBoard(_ context.Context, boardID string) ([]store.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cards []store.Card
	for _, card := range f.cards {
		if card.BoardID == boardID {
			cards = append(cards, card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].ListID != cards[j].ListID {
			return cards[i].ListID < cards[j].ListID
		}
		return cards[i].Position < cards[j].Position
	})
	return cards, nil
}

func (f *fakeStore) UpdateCardPlacement(_ context.Context, cardID, listID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placementCalls = append(f.placementCalls, cardID)
	if f.failPlacement {
		return errors.New("placement write failed")
	}
	card, ok := f.cards[cardID]
	if !ok {
		return sql.ErrNoRows
	}
	card.ListID = listID
	card.Position = position
	f.cards[cardID] = card
	return nil
}

func (f *fakeStore) UpdateCardCompletion(_ context.Context, cardID string, isComplete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[cardID]
	if !ok {
		return sql.ErrNoRows
	}
	card.IsComplete = isComplete
	f.cards[cardID] = card
	return nil
}

func (f *fakeStore) InsertCardActivity(_ context.Context, entry store.CardActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertActivity {
		return errors.New("activity insert failed")
	}
	f.activities = append(f.activities, entry)
	return nil
}

func (f *fakeStore) ListCardActivities(_ context.Context, cardID string) ([]store.CardActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listActivitiesErr != nil {
		return nil, f.listActivitiesErr
	}
	var rows []store.CardActivity
	for _, entry := range f.activities {
		if entry.CardID == cardID {
			rows = append(rows, entry)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[userID], nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func newTestService(fs *fakeStore) *Service {
	s := &Service{
		cfg: config.Config{
			JWTSecret:           "test-secret",
			AccessTTL:           time.Hour,
			RefreshTTL:          24 * time.Hour,
			ActivityDedupWindow: 2 * time.Second,
		},
		store:           fs,
		refresh:         fs,
		authpw:          authpw.NewService(fs),
		boardSessionTTL: 30 * time.Minute,
		boardSessions:   make(map[string]*boardSession),
	}
	s.exporter = export.NewService(&boardExportStore{service: s})
	return s
}

func seedUser(t *testing.T, fs *fakeStore, id, name, email string) Session {
	t.Helper()
	if err := fs.CreateUser(context.Background(), store.User{
		ID:              id,
		DisplayName:     name,
		Email:           email,
		IsEmailVerified: true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return Session{UserID: id, UserName: name, Email: email}
}

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")

	payload, err := svc.CreateOrganization(context.Background(), "Acme", "widgets", owner)
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	orgID := payload["id"].(string)

	role, err := fs.MemberRole(context.Background(), orgID, owner.UserID)
	if err != nil {
		t.Fatalf("MemberRole: %v", err)
	}
	if role != "owner" {
		t.Errorf("creator role = %q, want owner", role)
	}
}

func TestCreateOrganizationRequiresName(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")

	_, err := svc.CreateOrganization(context.Background(), "  ", "", owner)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestInviteFlow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")
	invitee := seedUser(t, fs, "usr_2", "Sam", "sam@example.com")

	orgPayload, err := svc.CreateOrganization(context.Background(), "Acme", "", owner)
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	orgID := orgPayload["id"].(string)

	invitePayload, err := svc.InviteMember(context.Background(), orgID, "sam@example.com", owner)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	token, _ := invitePayload["devInviteToken"].(string)
	if token == "" {
		t.Fatal("expected devInviteToken when SMTP is not configured")
	}

	if _, err := svc.AcceptInvite(context.Background(), token, invitee); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	role, _ := fs.MemberRole(context.Background(), orgID, invitee.UserID)
	if role != "member" {
		t.Errorf("invitee role = %q, want member", role)
	}

	// Accepting twice fails: the invite is no longer pending
	if _, err := svc.AcceptInvite(context.Background(), token, invitee); err == nil {
		t.Error("expected error accepting an already-accepted invite")
	}
}

func TestAcceptInviteRejectsWrongEmail(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")
	other := seedUser(t, fs, "usr_3", "Lee", "lee@example.com")

	orgPayload, _ := svc.CreateOrganization(context.Background(), "Acme", "", owner)
	orgID := orgPayload["id"].(string)
	invitePayload, _ := svc.InviteMember(context.Background(), orgID, "sam@example.com", owner)
	token := invitePayload["devInviteToken"].(string)

	_, err := svc.AcceptInvite(context.Background(), token, other)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestInviteRequiresOwnerRole(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")
	member := seedUser(t, fs, "usr_2", "Sam", "sam@example.com")

	orgPayload, _ := svc.CreateOrganization(context.Background(), "Acme", "", owner)
	orgID := orgPayload["id"].(string)
	_ = fs.AddOrganizationMember(context.Background(), orgID, member.UserID, "member")

	_, err := svc.InviteMember(context.Background(), orgID, "new@example.com", member)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for member-initiated invite, got %v", err)
	}
}

func TestSessionIssueParseAndRefresh(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")

	session, err := svc.CreateSession(context.Background(), user.UserID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != user.UserID || parsed.UserName != "Dana" || parsed.Email != "dana@example.com" {
		t.Errorf("parsed session = %+v", parsed)
	}

	rotated, err := svc.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// Old refresh token is single-use
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Error("expected error reusing a rotated refresh token")
	}
}

func TestBoardViewRequiresMembership(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")
	outsider := seedUser(t, fs, "usr_9", "Rae", "rae@example.com")

	orgPayload, _ := svc.CreateOrganization(context.Background(), "Acme", "", owner)
	orgID := orgPayload["id"].(string)
	boardPayload, err := svc.CreateBoard(context.Background(), orgID, "Launch", "", owner)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	boardID := boardPayload["id"].(string)

	if _, err := svc.BoardView(context.Background(), boardID, owner); err != nil {
		t.Fatalf("owner BoardView: %v", err)
	}

	_, err = svc.BoardView(context.Background(), boardID, outsider)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for non-member, got %v", err)
	}
}

func TestExportBoardCSV(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedUser(t, fs, "usr_1", "Dana", "dana@example.com")

	orgPayload, _ := svc.CreateOrganization(context.Background(), "Acme", "", owner)
	orgID := orgPayload["id"].(string)
	boardPayload, _ := svc.CreateBoard(context.Background(), orgID, "Launch", "", owner)
	boardID := boardPayload["id"].(string)

	_ = fs.CreateList(context.Background(), store.List{ID: "lst_1", Title: "Doing", BoardID: boardID, Position: 0})
	_ = fs.CreateCard(context.Background(), store.Card{ID: "crd_1", Title: "Ship it", ListID: "lst_1", BoardID: boardID, Position: 0})

	result, err := svc.ExportBoard(context.Background(), boardID, export.FormatCSV, owner)
	if err != nil {
		t.Fatalf("ExportBoard: %v", err)
	}
	if result.MimeType != "text/csv" {
		t.Errorf("MimeType = %q", result.MimeType)
	}
	if !strings.Contains(string(result.Data), "Ship it") {
		t.Errorf("csv missing card title: %s", result.Data)
	}
}

func TestRecordCardActivitySwallowsFailure(t *testing.T) {
	fs := newFakeStore()
	fs.failInsertActivity = true
	svc := newTestService(fs)

	// Must not panic or surface the error anywhere
	svc.recordCardActivity(context.Background(), store.CardActivity{
		CardID:     "crd_1",
		ActionType: "card_created",
	})
	if len(fs.activities) != 0 {
		t.Fatal("expected no stored activity")
	}
}
