package services

import (
	"context"
	"time"

	"messaging-service/internal/observability"
)

// RecomputeUnread rebuilds the unread counters of one conversation from the
// message log. It is a repair tool; the hot path never calls it.
func (s *ChatService) RecomputeUnread(ctx context.Context, conversationID int64) error {
	err := s.storeCall(ctx, "recompute_unread", func(ctx context.Context) error {
		return s.unread.Recompute(ctx, conversationID)
	})
	if err != nil {
		observability.IncUnreadRecompute("error")
		return mapStoreErr(err, "failed to recompute unread counts")
	}
	observability.IncUnreadRecompute("ok")
	return nil
}

// RecomputeAll repairs every conversation and returns how many were
// processed. It stops at the first failure.
func (s *ChatService) RecomputeAll(ctx context.Context) (int, error) {
	var ids []int64
	err := s.storeCall(ctx, "conversation_ids", func(ctx context.Context) error {
		var err error
		ids, err = s.unread.ConversationIDs(ctx)
		return err
	})
	if err != nil {
		return 0, mapStoreErr(err, "failed to list conversations")
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.RecomputeUnread(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// RunReconciler calls RecomputeAll every interval until ctx is done.
func (s *ChatService) RunReconciler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.RecomputeAll(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Error("unread reconcile failed", "processed", n, "error", err)
				continue
			}
			s.log.Debug("unread reconcile done", "conversations", n)
		}
	}
}
