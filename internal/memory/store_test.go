package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/memory"
	"github.com/match-lifecycle/internal/service"
)

var _ service.Store = (*memory.Store)(nil)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func entry(id, playerID string) *domain.QueueEntry {
	return &domain.QueueEntry{
		ID:        id,
		PlayerID:  playerID,
		Gender:    domain.GenderMixed,
		Status:    domain.QueueStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateQueueEntry_ConcurrentJoinsKeepOneActive(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.CreateQueueEntry(ctx, entry(fmt.Sprintf("e%d", i), "p1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
			conflicts++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 31, conflicts)
	active, err := store.ListActiveQueueEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateProposal_LostClaimWritesNothing(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.CreateQueueEntry(ctx, entry(fmt.Sprintf("e%d", i), fmt.Sprintf("p%d", i))))
	}

	first := &domain.Match{ID: "m1", QueueEntryIDs: []string{"e1", "e2", "e3", "e4"}, Status: domain.MatchPendingApproval}
	require.NoError(t, store.CreateProposal(ctx, first))

	second := &domain.Match{ID: "m2", QueueEntryIDs: []string{"e4", "e5", "e1", "e2"}, Status: domain.MatchPendingApproval}
	err := store.CreateProposal(ctx, second)
	assert.ErrorIs(t, err, domain.ErrQueueEntryClaimed)

	_, err = store.GetMatch(ctx, "m2")
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
	e5, _ := store.QueueEntry("e5")
	assert.Equal(t, domain.QueueStatusActive, e5.Status)
	e1, _ := store.QueueEntry("e1")
	assert.Equal(t, "m1", e1.MatchID)
}

func TestCancelActiveQueueEntry(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		require.NoError(t, store.CreateQueueEntry(ctx, entry(fmt.Sprintf("e%d", i), fmt.Sprintf("p%d", i))))
	}
	require.NoError(t, store.CreateProposal(ctx, &domain.Match{
		ID:            "m1",
		QueueEntryIDs: []string{"e1", "e2", "e3", "e4"},
		Status:        domain.MatchPendingApproval,
	}))

	t.Run("no entry is a no-op", func(t *testing.T) {
		assert.NoError(t, store.CancelActiveQueueEntry(ctx, "nobody", now))
	})
	t.Run("matched into a pending match", func(t *testing.T) {
		assert.ErrorIs(t, store.CancelActiveQueueEntry(ctx, "p1", now), domain.ErrQueueEntryClaimed)
	})
	t.Run("cancelled match releases the player", func(t *testing.T) {
		_, err := store.UpdateMatch(ctx, "m1", func(m *domain.Match) error {
			m.Status = domain.MatchCancelled
			return nil
		})
		require.NoError(t, err)
		e1, _ := store.QueueEntry("e1")
		assert.Equal(t, domain.QueueStatusCancelled, e1.Status)
		assert.NoError(t, store.CancelActiveQueueEntry(ctx, "p1", now))
	})
	t.Run("active entry is cancelled", func(t *testing.T) {
		require.NoError(t, store.CreateQueueEntry(ctx, entry("e9", "p9")))
		require.NoError(t, store.CancelActiveQueueEntry(ctx, "p9", now))
		_, err := store.GetActiveQueueEntry(ctx, "p9")
		assert.ErrorIs(t, err, domain.ErrQueueEntryNotFound)
	})
}

func TestCreateQueueEntry_HeldByPendingMatch(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		require.NoError(t, store.CreateQueueEntry(ctx, entry(fmt.Sprintf("e%d", i), fmt.Sprintf("p%d", i))))
	}
	require.NoError(t, store.CreateProposal(ctx, &domain.Match{
		ID:            "m1",
		QueueEntryIDs: []string{"e1", "e2", "e3", "e4"},
		Status:        domain.MatchPendingApproval,
	}))

	assert.ErrorIs(t, store.CreateQueueEntry(ctx, entry("e5", "p1")), domain.ErrAlreadyInQueue)

	_, err := store.UpdateMatch(ctx, "m1", func(m *domain.Match) error {
		m.Status = domain.MatchScheduling
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, store.CreateQueueEntry(ctx, entry("e5", "p1")))
}

// A player with an active entry and an entry claimed by a pending match (rows
// written before joins were checked against pending matches) leaves through the
// active one, whatever the map order.
func TestCancelActiveQueueEntry_PrefersActiveEntry(t *testing.T) {
	ctx := context.Background()
	for range 50 {
		store := memory.NewStore()
		stale := entry("e0", "p1")
		stale.Status = domain.QueueStatusMatched
		stale.MatchID = "m1"
		require.NoError(t, store.CreateQueueEntry(ctx, stale))
		require.NoError(t, store.CreateQueueEntry(ctx, entry("e5", "p1")))
		for i := 2; i <= 5; i++ {
			require.NoError(t, store.CreateQueueEntry(ctx, entry(fmt.Sprintf("e%d", i+10), fmt.Sprintf("p%d", i))))
		}
		require.NoError(t, store.CreateProposal(ctx, &domain.Match{
			ID:            "m1",
			QueueEntryIDs: []string{"e12", "e13", "e14", "e15"},
			Status:        domain.MatchPendingApproval,
		}))

		require.NoError(t, store.CancelActiveQueueEntry(ctx, "p1", now))
		e5, _ := store.QueueEntry("e5")
		require.Equal(t, domain.QueueStatusCancelled, e5.Status)

		// with nothing active left the claim is reported
		require.ErrorIs(t, store.CancelActiveQueueEntry(ctx, "p1", now), domain.ErrQueueEntryClaimed)
	}
}

func TestUpdateMatch_ErrorLeavesMatchUntouched(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProposal(ctx, &domain.Match{ID: "m1", Status: domain.MatchPendingApproval}))

	_, err := store.UpdateMatch(ctx, "m1", func(m *domain.Match) error {
		m.Status = domain.MatchScheduling
		return domain.ErrVotingClosed
	})
	require.ErrorIs(t, err, domain.ErrVotingClosed)

	m, err := store.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchPendingApproval, m.Status)
}
