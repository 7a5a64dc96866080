// Package memory is an in-process implementation of the repositories,
// used by the memory store driver and by tests. A single mutex gives every
// operation the atomicity the SQL implementation gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type conversation struct {
	models.Conversation
	participants map[int64]*models.Participant
}

// Store implements ConversationRepository, MessageRepository,
// UnreadRepository and UserDirectory.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextConversationID int64
	nextMessageID      int64

	conversations  map[int64]*conversation
	direct         map[string]int64
	messages       map[int64]*models.Message
	byConversation map[int64][]int64
	lastCreated    map[int64]time.Time
	reactions      map[int64]map[int64]models.Reaction
	receipts       map[int64]map[int64]models.DeliveryState

	// users is nil when every user id is considered valid.
	users map[int64]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithUsers restricts the known users to ids.
func WithUsers(ids ...int64) Option {
	return func(s *Store) {
		if s.users == nil {
			s.users = make(map[int64]struct{}, len(ids))
		}
		for _, id := range ids {
			s.users[id] = struct{}{}
		}
	}
}

// NewStore builds an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:            time.Now,
		conversations:  make(map[int64]*conversation),
		direct:         make(map[string]int64),
		messages:       make(map[int64]*models.Message),
		byConversation: make(map[int64][]int64),
		lastCreated:    make(map[int64]time.Time),
		reactions:      make(map[int64]map[int64]models.Reaction),
		receipts:       make(map[int64]map[int64]models.DeliveryState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ repositories.ConversationRepository = (*Store)(nil)
	_ repositories.MessageRepository      = (*Store)(nil)
	_ repositories.UnreadRepository       = (*Store)(nil)
	_ repositories.UserDirectory          = (*Store)(nil)
)

func (s *Store) FindDirect(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.direct[models.DirectKey(userA, userB)]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return s.snapshot(s.conversations[id]), nil
}

func (s *Store) CreateDirect(ctx context.Context, userA, userB int64) (models.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.DirectKey(userA, userB)
	if id, ok := s.direct[key]; ok {
		return s.snapshot(s.conversations[id]), false, nil
	}
	conv := s.insertConversation(false, nil, nil, []int64{userA, userB})
	s.direct[key] = conv.ID
	return s.snapshot(conv), true, nil
}

func (s *Store) CreateGroup(ctx context.Context, adminID int64, name string, participantIDs []int64) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.insertConversation(true, &name, &adminID, lo.Uniq(append([]int64{adminID}, participantIDs...)))
	return s.snapshot(conv), nil
}

func (s *Store) insertConversation(isGroup bool, name *string, admin *int64, members []int64) *conversation {
	s.nextConversationID++
	now := s.now()
	conv := &conversation{
		Conversation: models.Conversation{
			ID:         s.nextConversationID,
			IsGroup:    isGroup,
			GroupName:  name,
			GroupAdmin: admin,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		participants: make(map[int64]*models.Participant, len(members)),
	}
	for _, id := range members {
		conv.participants[id] = &models.Participant{ConversationID: conv.ID, UserID: id, JoinedAt: now}
	}
	s.conversations[conv.ID] = conv
	return conv
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return s.snapshot(conv), nil
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return false, nil
	}
	_, member := conv.participants[userID]
	return member, nil
}

func (s *Store) ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Conversation
	for _, conv := range s.conversations {
		if _, ok := conv.participants[userID]; ok {
			result = append(result, s.snapshot(conv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	if _, exists := conv.participants[userID]; exists {
		return repositories.ErrAlreadyParticipant
	}
	now := s.now()
	conv.participants[userID] = &models.Participant{
		ConversationID:    conversationID,
		UserID:            userID,
		JoinedAt:          now,
		LastReadAt:        &now,
		LastReadMessageID: s.latestMessageID(conversationID),
	}
	return nil
}

// latestMessageID returns the newest message id of the conversation, deleted
// or not, or zero. Callers hold s.mu.
func (s *Store) latestMessageID(conversationID int64) int64 {
	ids := s.byConversation[conversationID]
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1]
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	if _, exists := conv.participants[userID]; !exists {
		return repositories.ErrNotParticipant
	}
	delete(conv.participants, userID)
	return nil
}

// snapshot copies conv so that callers never share state with the store.
// Callers hold s.mu.
func (s *Store) snapshot(conv *conversation) models.Conversation {
	out := conv.Conversation
	out.Participants = make([]models.Participant, 0, len(conv.participants))
	for _, p := range conv.participants {
		cp := *p
		out.Participants = append(out.Participants, cp)
	}
	sort.Slice(out.Participants, func(i, j int) bool { return out.Participants[i].UserID < out.Participants[j].UserID })
	if conv.LastMessageID != nil {
		if m, ok := s.messages[*conv.LastMessageID]; ok && !m.Deleted {
			last := s.messageCopy(m)
			out.LastMessage = &last
		}
	}
	return out
}

func (s *Store) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		return nil, nil
	}
	return lo.Filter(lo.Uniq(ids), func(id int64, _ int) bool {
		_, ok := s.users[id]
		return !ok
	}), nil
}
