package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"tackboard/api/internal/activity"
	"tackboard/api/internal/ordering"
	"tackboard/api/internal/rbac"
	"tackboard/api/internal/store"
	"tackboard/api/internal/util"
)

// ErrSessionNotFound indicates an unknown or expired board session.
var ErrSessionNotFound = errors.New("board session not found")

type activityViewState string

const (
	activityClosed  activityViewState = "closed"
	activityLoading activityViewState = "loading"
	activityLoaded  activityViewState = "loaded"
	activityErrored activityViewState = "errored"
)

type activityView struct {
	state   activityViewState
	records []activity.Record
}

// boardSession is the in-memory working copy of an open board view. All
// mutations apply here first; persistence of reorders is best-effort and
// never rolls the local state back.
type boardSession struct {
	id        string
	boardID   string
	userID    string
	expiresAt time.Time

	lists []store.List            // position order
	cards map[string][]store.Card // keyed by list ID, position order
	views map[string]*activityView
}

func (bs *boardSession) listTitle(listID string) string {
	for _, list := range bs.lists {
		if list.ID == listID {
			return list.Title
		}
	}
	return ""
}

func (bs *boardSession) hasList(listID string) bool {
	_, ok := bs.cards[listID]
	return ok
}

func (bs *boardSession) findCard(cardID string) (store.Card, bool) {
	for _, cards := range bs.cards {
		for _, card := range cards {
			if card.ID == cardID {
				return card, true
			}
		}
	}
	return store.Card{}, false
}

// cardContainers builds the reorder input. Every list appears, including
// empty ones, so cards can be moved into them.
func (bs *boardSession) cardContainers() map[string][]ordering.Item {
	containers := make(map[string][]ordering.Item, len(bs.cards))
	for listID, cards := range bs.cards {
		items := make([]ordering.Item, len(cards))
		for i, card := range cards {
			items[i] = ordering.Item{ID: card.ID, Container: listID, Position: card.Position}
		}
		containers[listID] = items
	}
	return containers
}

func (bs *boardSession) applyCardUpdates(updates []ordering.Update) {
	if len(updates) == 0 {
		return
	}
	byID := make(map[string]store.Card)
	for _, cards := range bs.cards {
		for _, card := range cards {
			byID[card.ID] = card
		}
	}
	for _, u := range updates {
		card, ok := byID[u.ID]
		if !ok {
			continue
		}
		card.ListID = u.Container
		card.Position = u.Position
		byID[u.ID] = card
	}
	rebuilt := make(map[string][]store.Card, len(bs.cards))
	for listID := range bs.cards {
		rebuilt[listID] = []store.Card{}
	}
	for _, card := range byID {
		rebuilt[card.ListID] = append(rebuilt[card.ListID], card)
	}
	for listID := range rebuilt {
		cards := rebuilt[listID]
		sort.Slice(cards, func(i, j int) bool { return cards[i].Position < cards[j].Position })
		rebuilt[listID] = cards
	}
	bs.cards = rebuilt
}

func (bs *boardSession) applyListUpdates(updates []ordering.Update) {
	if len(updates) == 0 {
		return
	}
	positions := make(map[string]int, len(updates))
	for _, u := range updates {
		positions[u.ID] = u.Position
	}
	for i, list := range bs.lists {
		if pos, ok := positions[list.ID]; ok {
			bs.lists[i].Position = pos
		}
	}
	sort.Slice(bs.lists, func(i, j int) bool { return bs.lists[i].Position < bs.lists[j].Position })
}

func (bs *boardSession) snapshot() map[string]any {
	listItems := make([]map[string]any, 0, len(bs.lists))
	for _, list := range bs.lists {
		cards := bs.cards[list.ID]
		cardItems := make([]map[string]any, 0, len(cards))
		for _, card := range cards {
			cardItems = append(cardItems, cardPayload(card))
		}
		listItems = append(listItems, map[string]any{
			"id":       list.ID,
			"title":    list.Title,
			"position": list.Position,
			"cards":    cardItems,
		})
	}
	return map[string]any{
		"sessionId": bs.id,
		"boardId":   bs.boardID,
		"lists":     listItems,
	}
}

// OpenBoardSession loads the board into memory and returns a session the
// client uses for subsequent board operations.
func (s *Service) OpenBoardSession(ctx context.Context, boardID string, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
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

	bs := &boardSession{
		id:        util.NewID("bsn"),
		boardID:   boardID,
		userID:    viewer.UserID,
		expiresAt: time.Now().Add(s.boardSessionTTL),
		lists:     lists,
		cards:     make(map[string][]store.Card, len(lists)),
		views:     make(map[string]*activityView),
	}
	for _, list := range lists {
		bs.cards[list.ID] = []store.Card{}
	}
	for _, card := range cards {
		bs.cards[card.ListID] = append(bs.cards[card.ListID], card)
	}

	s.sessMu.Lock()
	s.sweepBoardSessionsLocked()
	s.boardSessions[bs.id] = bs
	s.sessMu.Unlock()

	return bs.snapshot(), nil
}

func (s *Service) sweepBoardSessionsLocked() {
	now := time.Now()
	for id, bs := range s.boardSessions {
		if now.After(bs.expiresAt) {
			delete(s.boardSessions, id)
		}
	}
}

// boardSessionFor looks up an open session and extends its expiry. The
// caller must hold sessMu for the whole operation; every mutation of a
// session goes through withBoardSession.
func (s *Service) withBoardSession(sessionID, boardID, userID string, fn func(*boardSession) error) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	bs, ok := s.boardSessions[sessionID]
	if !ok || time.Now().After(bs.expiresAt) {
		delete(s.boardSessions, sessionID)
		return ErrSessionNotFound
	}
	if bs.boardID != boardID || bs.userID != userID {
		return ErrSessionNotFound
	}
	bs.expiresAt = time.Now().Add(s.boardSessionTTL)
	return fn(bs)
}

// AddList creates a list at the end of the board.
func (s *Service) AddList(ctx context.Context, sessionID, boardID, title string, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		positions := make([]int, len(bs.lists))
		for i, list := range bs.lists {
			positions[i] = list.Position
		}
		list := store.List{
			ID:       util.NewID("lst"),
			Title:    title,
			BoardID:  boardID,
			Position: ordering.NextPosition(positions),
		}
		if err := s.store.CreateList(ctx, list); err != nil {
			return err
		}
		bs.lists = append(bs.lists, list)
		bs.cards[list.ID] = []store.Card{}
		payload = bs.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// AddCard creates a card at the end of a list and records the creation in
// the card's audit trail.
func (s *Service) AddCard(ctx context.Context, sessionID, boardID, listID, title, description string, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		if !bs.hasList(listID) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown list", nil)
		}
		cards := bs.cards[listID]
		positions := make([]int, len(cards))
		for i, card := range cards {
			positions[i] = card.Position
		}
		card := store.Card{
			ID:          util.NewID("crd"),
			Title:       title,
			Description: strings.TrimSpace(description),
			ListID:      listID,
			BoardID:     boardID,
			Position:    ordering.NextPosition(positions),
			UserID:      viewer.UserID,
		}
		if err := s.store.CreateCard(ctx, card); err != nil {
			return err
		}
		bs.cards[listID] = append(bs.cards[listID], card)

		desc, details := activity.Created(card.Title, bs.listTitle(listID), card.Position)
		s.recordCardActivity(ctx, store.CardActivity{
			CardID:      card.ID,
			ActionType:  string(activity.ActionCardCreated),
			Description: desc,
			Details:     details,
			CreatedBy:   viewer.UserName,
		})
		s.indexCard(card)

		payload = bs.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// MoveCard applies a card move through the reorder engine. A move that
// lands where it started is a no-op: no writes, no activity. Otherwise the
// session state updates first, then each changed row is persisted
// best-effort, then the move is recorded in the audit trail with the final
// indices.
func (s *Service) MoveCard(ctx context.Context, sessionID, boardID string, move ordering.Move, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(move.ItemID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cardId is required", nil)
	}

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		updates, err := ordering.Reorder(bs.cardContainers(), move)
		if err != nil {
			return err
		}
		if updates == nil {
			payload = bs.snapshot()
			return nil
		}

		bs.applyCardUpdates(updates)

		for _, u := range updates {
			if err := s.store.UpdateCardPlacement(ctx, u.ID, u.Container, u.Position); err != nil {
				log.Printf("reorder: persist card %s in %s at %d: %v", u.ID, u.Container, u.Position, err)
			}
		}

		moved, _ := bs.findCard(move.ItemID)
		var description, details string
		if move.FromContainer == move.ToContainer {
			description, details = activity.MovedWithin(bs.listTitle(move.ToContainer), move.FromIndex, moved.Position)
		} else {
			description, details = activity.MovedAcross(bs.listTitle(move.FromContainer), bs.listTitle(move.ToContainer), move.FromIndex, moved.Position)
		}
		s.recordCardActivity(ctx, store.CardActivity{
			CardID:      move.ItemID,
			ActionType:  string(activity.ActionCardMoved),
			Description: description,
			Details:     details,
			CreatedBy:   viewer.UserName,
		})
		s.indexCard(moved)

		payload = bs.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// MoveList reorders lists within the board. List moves are not part of any
// card's audit trail.
func (s *Service) MoveList(ctx context.Context, sessionID, boardID string, move ordering.Move, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(move.ItemID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "listId is required", nil)
	}

	move.FromContainer = boardID
	move.ToContainer = boardID

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		items := make([]ordering.Item, len(bs.lists))
		for i, list := range bs.lists {
			items[i] = ordering.Item{ID: list.ID, Container: boardID, Position: list.Position}
		}
		updates, err := ordering.Reorder(map[string][]ordering.Item{boardID: items}, move)
		if err != nil {
			return err
		}
		if updates == nil {
			payload = bs.snapshot()
			return nil
		}

		bs.applyListUpdates(updates)

		for _, u := range updates {
			if err := s.store.UpdateListPosition(ctx, u.ID, u.Position); err != nil {
				log.Printf("reorder: persist list %s at %d: %v", u.ID, u.Position, err)
			}
		}

		payload = bs.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// ToggleCard flips a card's completion state and records it.
func (s *Service) ToggleCard(ctx context.Context, sessionID, boardID, cardID string, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionWrite); err != nil {
		return nil, err
	}

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		card, ok := bs.findCard(cardID)
		if !ok {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Card not found", nil)
		}
		next := !card.IsComplete
		if err := s.store.UpdateCardCompletion(ctx, cardID, next); err != nil {
			return err
		}

		cards := bs.cards[card.ListID]
		for i := range cards {
			if cards[i].ID == cardID {
				cards[i].IsComplete = next
				card = cards[i]
				break
			}
		}

		actionType, description, details := activity.CompletionToggled(next)
		s.recordCardActivity(ctx, store.CardActivity{
			CardID:      cardID,
			ActionType:  string(actionType),
			Description: description,
			Details:     details,
			CreatedBy:   viewer.UserName,
		})
		s.indexCard(card)

		payload = bs.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// ToggleCardActivity opens or closes a card's activity panel. Opening loads
// the audit trail and reconciles legacy records against their structured
// counterparts; a failed load leaves the panel in the errored state rather
// than closing it.
func (s *Service) ToggleCardActivity(ctx context.Context, sessionID, boardID, cardID string, viewer Session) (map[string]any, error) {
	role, _, err := s.roleForBoard(ctx, boardID, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if err := requireAction(role, rbac.ActionRead); err != nil {
		return nil, err
	}

	var payload map[string]any
	err = s.withBoardSession(sessionID, boardID, viewer.UserID, func(bs *boardSession) error {
		if _, ok := bs.findCard(cardID); !ok {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Card not found", nil)
		}

		view := bs.views[cardID]
		if view == nil {
			view = &activityView{state: activityClosed}
			bs.views[cardID] = view
		}

		switch view.state {
		case activityLoaded, activityErrored:
			view.state = activityClosed
			view.records = nil
			payload = activityViewPayload(cardID, view)
			return nil
		}

		view.state = activityLoading
		rows, err := s.store.ListCardActivities(ctx, cardID)
		if err != nil {
			log.Printf("activity: load trail for card %s: %v", cardID, err)
			view.state = activityErrored
			payload = activityViewPayload(cardID, view)
			return nil
		}

		records := make([]activity.Record, len(rows))
		for i, row := range rows {
			records[i] = activity.Record{
				ID:          row.ID,
				CardID:      row.CardID,
				ActionType:  activity.Normalize(row.ActionType),
				Description: row.Description,
				Details:     row.Details,
				CreatedBy:   row.CreatedBy,
				CreatedAt:   row.CreatedAt,
			}
		}
		view.records = activity.Reconcile(records, s.cfg.ActivityDedupWindow)
		view.state = activityLoaded
		payload = activityViewPayload(cardID, view)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func activityViewPayload(cardID string, view *activityView) map[string]any {
	records := make([]map[string]any, 0, len(view.records))
	for _, record := range view.records {
		records = append(records, map[string]any{
			"id":          record.ID,
			"actionType":  string(record.ActionType),
			"description": record.Description,
			"details":     record.Details,
			"createdBy":   record.CreatedBy,
			"createdAt":   record.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"cardId":  cardID,
		"state":   string(view.state),
		"records": records,
	}
}
