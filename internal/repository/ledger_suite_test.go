package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventSeed describes an event to seed into a fixture's Directory.
type eventSeed struct {
	capacity *int
	closesAt *time.Time
}

type ledgerFixture struct {
	ledger   Ledger
	addEvent func(t *testing.T, seed eventSeed) string
}

func intPtr(v int) *int { return &v }

// bookingResult summarises the outcome of a single registration attempt.
type bookingResult struct {
	userID string
	reg    *model.Registration
	err    error
}

// raceCreate fires one Create per user at the same instant.
func raceCreate(ctx context.Context, l Ledger, eventID string, users []string) []bookingResult {
	results := make([]bookingResult, len(users))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			reg, err := l.Create(ctx, u, eventID)
			results[i] = bookingResult{userID: u, reg: reg, err: err}
		}()
	}
	close(start)
	wg.Wait()
	return results
}

func countOutcomes(results []bookingResult) (ok int, byErr map[error]int) {
	byErr = make(map[error]int)
	for _, r := range results {
		switch {
		case r.err == nil:
			ok++
		case errors.Is(r.err, model.ErrEventFull):
			byErr[model.ErrEventFull]++
		case errors.Is(r.err, model.ErrAlreadyRegistered):
			byErr[model.ErrAlreadyRegistered]++
		default:
			byErr[r.err]++
		}
	}
	return ok, byErr
}

func activeFor(regs []model.Registration, userID, eventID string) int {
	n := 0
	for _, r := range regs {
		if r.UserID == userID && r.EventID == eventID && r.IsActive() {
			n++
		}
	}
	return n
}

func runLedgerSuite(t *testing.T, setup func(t *testing.T) ledgerFixture) {
	ctx := context.Background()

	t.Run("capacity race admits exactly C", func(t *testing.T) {
		f := setup(t)
		const capacity = 5
		eventID := f.addEvent(t, eventSeed{capacity: intPtr(capacity)})

		users := make([]string, capacity+1)
		for i := range users {
			users[i] = fmt.Sprintf("user-%d", i)
		}
		ok, byErr := countOutcomes(raceCreate(ctx, f.ledger, eventID, users))

		assert.Equal(t, capacity, ok)
		assert.Equal(t, 1, byErr[model.ErrEventFull])

		counts, err := f.ledger.ActiveCounts(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, capacity, counts[eventID])
	})

	t.Run("same pair race yields one success", func(t *testing.T) {
		f := setup(t)
		eventID := f.addEvent(t, eventSeed{capacity: intPtr(10)})

		users := []string{"alice", "alice", "alice", "alice"}
		ok, byErr := countOutcomes(raceCreate(ctx, f.ledger, eventID, users))

		assert.Equal(t, 1, ok)
		assert.Equal(t, len(users)-1, byErr[model.ErrAlreadyRegistered])

		regs, err := f.ledger.ListForUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, activeFor(regs, "alice", eventID))
	})

	t.Run("capacity two scenario", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{capacity: intPtr(2)})

		_, err := f.ledger.Create(ctx, "A", e1)
		require.NoError(t, err)
		_, err = f.ledger.Create(ctx, "B", e1)
		require.NoError(t, err)

		_, err = f.ledger.Create(ctx, "C", e1)
		require.ErrorIs(t, err, model.ErrEventFull)

		cancelled, err := f.ledger.Cancel(ctx, "A", e1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledAt)

		_, err = f.ledger.Create(ctx, "C", e1)
		require.NoError(t, err)

		regs, err := f.ledger.ListAll(ctx, model.RegistrationFilter{EventID: e1})
		require.NoError(t, err)
		require.Len(t, regs, 3)
		assert.Equal(t, 0, activeFor(regs, "A", e1))
		assert.Equal(t, 1, activeFor(regs, "B", e1))
		assert.Equal(t, 1, activeFor(regs, "C", e1))

		active, err := f.ledger.ListAll(ctx, model.RegistrationFilter{EventID: e1, Status: model.StatusActive})
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("double register keeps one active row", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{})

		first, err := f.ledger.Create(ctx, "A", e1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, first.Status)

		_, err = f.ledger.Create(ctx, "A", e1)
		require.ErrorIs(t, err, model.ErrAlreadyRegistered)

		regs, err := f.ledger.ListForUser(ctx, "A")
		require.NoError(t, err)
		require.Len(t, regs, 1)
		assert.Equal(t, first.ID, regs[0].ID)
	})

	t.Run("cancel then register leaves a single active record", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{capacity: intPtr(1)})

		first, err := f.ledger.Create(ctx, "A", e1)
		require.NoError(t, err)
		_, err = f.ledger.Cancel(ctx, "A", e1)
		require.NoError(t, err)
		second, err := f.ledger.Create(ctx, "A", e1)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		regs, err := f.ledger.ListForUser(ctx, "A")
		require.NoError(t, err)
		require.Len(t, regs, 2)
		assert.Equal(t, 1, activeFor(regs, "A", e1))
		for _, r := range regs {
			if r.ID == first.ID {
				assert.Equal(t, model.StatusCancelled, r.Status)
				assert.True(t, r.CreatedAt.Equal(first.CreatedAt))
			}
		}
	})

	t.Run("cancel without active registration fails", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{})

		_, err := f.ledger.Cancel(ctx, "A", e1)
		require.ErrorIs(t, err, model.ErrNotRegistered)

		_, err = f.ledger.Create(ctx, "A", e1)
		require.NoError(t, err)
		_, err = f.ledger.Cancel(ctx, "A", e1)
		require.NoError(t, err)

		_, err = f.ledger.Cancel(ctx, "A", e1)
		require.ErrorIs(t, err, model.ErrNotRegistered)
	})

	t.Run("unknown event", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.Create(ctx, "A", "does-not-exist")
		require.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("closed registration", func(t *testing.T) {
		f := setup(t)
		past := time.Now().Add(-time.Hour).UTC()
		e1 := f.addEvent(t, eventSeed{closesAt: &past})

		_, err := f.ledger.Create(ctx, "A", e1)
		require.ErrorIs(t, err, model.ErrRegistrationClosed)
	})

	t.Run("unbounded capacity", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{})

		users := make([]string, 25)
		for i := range users {
			users[i] = fmt.Sprintf("u%02d", i)
		}
		ok, _ := countOutcomes(raceCreate(ctx, f.ledger, e1, users))
		assert.Equal(t, len(users), ok)
	})

	t.Run("list for user with no registrations is empty", func(t *testing.T) {
		f := setup(t)
		regs, err := f.ledger.ListForUser(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, regs)
		assert.Empty(t, regs)
	})

	t.Run("list all paginates in creation order", func(t *testing.T) {
		f := setup(t)
		e1 := f.addEvent(t, eventSeed{})
		e2 := f.addEvent(t, eventSeed{})

		var ids []string
		for i := 0; i < 4; i++ {
			reg, err := f.ledger.Create(ctx, fmt.Sprintf("p%d", i), e1)
			require.NoError(t, err)
			ids = append(ids, reg.ID)
			time.Sleep(2 * time.Millisecond)
		}
		_, err := f.ledger.Create(ctx, "other", e2)
		require.NoError(t, err)

		page, err := f.ledger.ListAll(ctx, model.RegistrationFilter{EventID: e1, Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[1], page[0].ID)
		assert.Equal(t, ids[2], page[1].ID)

		all, err := f.ledger.ListAll(ctx, model.RegistrationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 5)

		counts, err := f.ledger.ActiveCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, counts[e1])
		assert.Equal(t, 1, counts[e2])
	})
}
