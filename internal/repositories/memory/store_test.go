package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func send(t *testing.T, s *Store, convID, sender int64, text string) models.Message {
	t.Helper()
	msg, err := s.Append(context.Background(), models.NewMessage{ConversationID: convID, SenderID: sender, Text: text, ContentType: models.ContentText})
	require.NoError(t, err)
	return msg
}

func TestCreateDirectIsUniquePerPair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]struct{}{}
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, isNew, err := s.CreateDirect(ctx, a, b)
			assert.NoError(t, err)
			mu.Lock()
			ids[conv.ID] = struct{}{}
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)

	found, err := s.FindDirect(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, found.ParticipantIDs())
}

func TestFindDirectMissing(t *testing.T) {
	_, err := NewStore().FindDirect(context.Background(), 1, 2)
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)
}

func TestAppendIncrementsOthersOnly(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, err := s.CreateGroup(ctx, 1, "team", []int64{2, 3})
	require.NoError(t, err)

	send(t, s, conv.ID, 1, "a")
	send(t, s, conv.ID, 1, "b")
	send(t, s, conv.ID, 2, "c")

	for user, want := range map[int64]int{1: 1, 2: 2, 3: 3} {
		got, err := s.Unread(ctx, conv.ID, user)
		require.NoError(t, err)
		assert.Equal(t, want, got, "user %d", user)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "c", got.LastMessage.Text)
}

func TestAppendRejectsOutsiders(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	_, err = s.Append(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: 9, Text: "hi"})
	assert.ErrorIs(t, err, repositories.ErrNotParticipant)

	_, err = s.Append(ctx, models.NewMessage{ConversationID: 404, SenderID: 1, Text: "hi"})
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)

	unread, err := s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestResetThenAppendCountsOne(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	send(t, s, conv.ID, 1, "one")
	send(t, s, conv.ID, 1, "two")
	require.NoError(t, s.Reset(ctx, conv.ID, 2))
	send(t, s, conv.ID, 1, "three")

	unread, err := s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestConcurrentAppendsAndResetNeverLoseIncrements(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, models.NewMessage{ConversationID: conv.ID, SenderID: 1, Text: "x", ContentType: models.ContentText})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	unread, err := s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 50, unread)

	require.NoError(t, s.Reset(ctx, conv.ID, 2))
	unread, err = s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestResetRequiresParticipant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Reset(ctx, conv.ID, 3), repositories.ErrNotParticipant)
}

func TestPaginationWithIdenticalTimestamps(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	var sent []int64
	for i := 0; i < 7; i++ {
		sent = append(sent, send(t, s, conv.ID, 1, "m").ID)
	}

	var (
		collected []int64
		cursor    *models.Cursor
		pages     int
	)
	for {
		page, err := s.Page(ctx, conv.ID, cursor, 3)
		require.NoError(t, err)
		pages++

		again, err := s.Page(ctx, conv.ID, cursor, 3)
		require.NoError(t, err)
		assert.Equal(t, page, again)

		ids := make([]int64, 0, len(page.Messages))
		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}
		collected = append(ids, collected...)
		if !page.HasMore {
			break
		}
		cursor, err = models.ParseCursor(page.NextCursor)
		require.NoError(t, err)
	}

	assert.Equal(t, sent, collected)
	assert.Equal(t, 3, pages)
}

func TestPageHasMoreWhenExactlyFull(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	send(t, s, conv.ID, 1, "a")
	send(t, s, conv.ID, 2, "b")

	page, err := s.Page(ctx, conv.ID, nil, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	cursor, err := models.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	next, err := s.Page(ctx, conv.ID, cursor, 2)
	require.NoError(t, err)
	assert.Empty(t, next.Messages)
	assert.False(t, next.HasMore)
	assert.Empty(t, next.NextCursor)
}

func TestSoftDeleteRollsBackUnread(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	first := send(t, s, conv.ID, 1, "a")
	last := send(t, s, conv.ID, 1, "b")

	_, err = s.SoftDelete(ctx, conv.ID, last.ID, 2)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	_, err = s.SoftDelete(ctx, conv.ID, last.ID, 1)
	require.NoError(t, err)

	unread, err := s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, first.ID, got.LastMessage.ID)

	page, err := s.Page(ctx, conv.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, first.ID, page.Messages[0].ID)
}

func TestReactionsUpsertAndRemove(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	msg := send(t, s, conv.ID, 1, "a")

	require.NoError(t, s.SetReaction(ctx, msg.ID, 2, "👍"))
	require.NoError(t, s.SetReaction(ctx, msg.ID, 2, "🔥"))
	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "🔥", got.Reactions[0].Emoji)

	require.NoError(t, s.SetReaction(ctx, msg.ID, 2, ""))
	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
}

func TestAdvanceStateWaitsForEveryRecipient(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv, err := s.CreateGroup(ctx, 1, "team", []int64{2, 3})
	require.NoError(t, err)
	msg := send(t, s, conv.ID, 1, "a")

	promoted, err := s.AdvanceState(ctx, conv.ID, 2, models.StateRead)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	promoted, err = s.AdvanceState(ctx, conv.ID, 3, models.StateRead)
	require.NoError(t, err)
	assert.EqualValues(t, 1, promoted)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRead, got.DeliveryState)

	promoted, err = s.AdvanceState(ctx, conv.ID, 2, models.StateDelivered)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestRecomputeMatchesCounters(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}))
	ctx := context.Background()
	conv, err := s.CreateGroup(ctx, 1, "team", []int64{2, 3})
	require.NoError(t, err)

	send(t, s, conv.ID, 1, "a")
	send(t, s, conv.ID, 2, "b")
	require.NoError(t, s.Reset(ctx, conv.ID, 3))
	send(t, s, conv.ID, 1, "c")

	before := map[int64]int{}
	for _, u := range []int64{1, 2, 3} {
		before[u], err = s.Unread(ctx, conv.ID, u)
		require.NoError(t, err)
	}
	require.NoError(t, s.Recompute(ctx, conv.ID))
	for _, u := range []int64{1, 2, 3} {
		after, err := s.Unread(ctx, conv.ID, u)
		require.NoError(t, err)
		assert.Equal(t, before[u], after, "user %d", u)
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 2, 3: 1}, before)
}

func TestMissingUsers(t *testing.T) {
	s := NewStore(WithUsers(1, 2, 3))
	missing, err := s.MissingUsers(context.Background(), []int64{1, 4, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, missing)

	open := NewStore()
	missing, err = open.MissingUsers(context.Background(), []int64{99})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestListForUserOrdersByActivity(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()
	older, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	newer, _, err := s.CreateDirect(ctx, 1, 3)
	require.NoError(t, err)
	send(t, s, older.ID, 2, "bump")

	convs, err := s.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, older.ID, convs[0].ID)
	assert.Equal(t, newer.ID, convs[1].ID)
}

func TestRecomputeCountsMessageSentInTheSameInstantAsReset(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	conv, _, err := s.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	send(t, s, conv.ID, 1, "one")
	require.NoError(t, s.Reset(ctx, conv.ID, 2))
	send(t, s, conv.ID, 1, "two")

	unread, err := s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	require.NoError(t, s.Recompute(ctx, conv.ID))
	unread, err = s.Unread(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestAddedParticipantStartsAtTheWatermark(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	conv, err := s.CreateGroup(ctx, 1, "team", []int64{2})
	require.NoError(t, err)

	send(t, s, conv.ID, 1, "before")
	require.NoError(t, s.AddParticipant(ctx, conv.ID, 3))
	after := send(t, s, conv.ID, 1, "after")

	require.NoError(t, s.Recompute(ctx, conv.ID))
	unread, err := s.Unread(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	_, err = s.SoftDelete(ctx, conv.ID, after.ID, 1)
	require.NoError(t, err)
	unread, err = s.Unread(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
