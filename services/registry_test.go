package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"reading-club-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(clock *fakeClock) (*Registry, *Ledger) {
	ledger := NewLedger(clock.Now)
	return NewRegistry(RegistryConfig{Capacity: 10, Cooldown: 48 * time.Hour, Reward: 10}, ledger, clock.Now), ledger
}

func TestRegistryCapacity(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRegistry(clock)

	for owner := int64(1); owner <= 10; owner++ {
		sub, adm := r.Submit(owner, fmt.Sprintf("https://telegra.ph/%d", owner), "t", "")
		require.True(t, adm.Allowed, "owner %d", owner)
		require.NotNil(t, sub)
	}

	adm := r.CanSubmit(11)
	assert.False(t, adm.Allowed)
	assert.Equal(t, AdmissionCapacity, adm.Reason)

	sub, adm := r.Submit(11, "https://telegra.ph/11", "t", "")
	assert.Nil(t, sub)
	assert.Equal(t, AdmissionCapacity, adm.Reason)
	assert.Equal(t, 10, r.QueueSize())
}

func TestRegistryDuplicateThenCooldown(t *testing.T) {
	clock := newFakeClock()
	r, ledger := newTestRegistry(clock)

	_, adm := r.Submit(1, "https://telegra.ph/a", "A", "")
	require.True(t, adm.Allowed)
	assert.Equal(t, int64(10), ledger.Balance(1), "submission reward")

	adm = r.CanSubmit(1)
	assert.False(t, adm.Allowed)
	assert.Equal(t, AdmissionDuplicate, adm.Reason)

	// published but still cooling down
	clock.Advance(24 * time.Hour)
	require.Len(t, r.DequeueBatch(1), 1)
	adm = r.CanSubmit(1)
	assert.Equal(t, AdmissionCooldown, adm.Reason)
	assert.Equal(t, 24*time.Hour, adm.RetryAfter)

	clock.Advance(24 * time.Hour)
	adm = r.CanSubmit(1)
	assert.True(t, adm.Allowed)
	assert.Equal(t, AdmissionOK, adm.Reason)
}

func TestRegistryRejectedSubmitDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	r, ledger := newTestRegistry(clock)

	_, adm := r.Submit(1, "https://telegra.ph/a", "A", "")
	require.True(t, adm.Allowed)
	clock.Advance(time.Hour)

	sub, adm := r.Submit(1, "https://telegra.ph/b", "B", "")
	assert.Nil(t, sub)
	assert.False(t, adm.Allowed)
	assert.Equal(t, 1, r.QueueSize())
	assert.Equal(t, int64(10), ledger.Balance(1))

	pending, ok := r.Pending(1)
	require.True(t, ok)
	assert.Equal(t, "A", pending.Title)
}

func TestRegistryDequeueFIFO(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRegistry(clock)

	for owner := int64(1); owner <= 4; owner++ {
		_, adm := r.Submit(owner, fmt.Sprintf("https://telegra.ph/%d", owner), fmt.Sprintf("T%d", owner), "")
		require.True(t, adm.Allowed)
		clock.Advance(time.Minute)
	}

	assert.Equal(t, []int64{1, 2}, owners(r.ListQueue(2)))

	batch := r.DequeueBatch(3)
	require.Len(t, batch, 3)
	assert.Equal(t, []int64{1, 2, 3}, owners(batch))
	for _, sub := range batch {
		assert.Equal(t, models.SubmissionStatusPublished, sub.Status)
		require.NotNil(t, sub.PublishedAt)
	}
	assert.Equal(t, 1, r.QueueSize())
	assert.Equal(t, 3, r.PublishedToday())
	assert.Len(t, r.Published(), 3)

	batch = r.DequeueBatch(10)
	assert.Equal(t, []int64{4}, owners(batch))

	r.ResetDailyCounters()
	assert.Equal(t, 0, r.PublishedToday())
}

func TestRegistryDequeueEmptyIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(newFakeClock())

	first := r.DequeueBatch(5)
	second := r.DequeueBatch(5)
	assert.Equal(t, []models.Submission{}, first)
	assert.Equal(t, []models.Submission{}, second)
	assert.Equal(t, 0, r.QueueSize())
	assert.Equal(t, 0, r.PublishedToday())
	assert.Empty(t, r.DequeueBatch(0))
}

func TestRegistryConcurrentSubmitsOnePendingPerOwner(t *testing.T) {
	r, ledger := newTestRegistry(newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Submit(5, fmt.Sprintf("https://telegra.ph/%d", i), "", "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.QueueSize())
	assert.Equal(t, int64(10), ledger.Balance(5))
}

func TestRegistryRemindersOncePerCooldown(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRegistry(clock)

	_, adm := r.Submit(1, "https://telegra.ph/a", "", "")
	require.True(t, adm.Allowed)
	_, adm = r.Submit(2, "https://telegra.ph/b", "", "")
	require.True(t, adm.Allowed)

	clock.Advance(48 * time.Hour)
	assert.Empty(t, r.DueReminders(), "both still queued")

	r.DequeueBatch(1) // owner 1 published
	assert.Equal(t, []int64{1}, r.DueReminders())
	assert.Empty(t, r.DueReminders(), "already reminded")

	_, adm = r.Submit(1, "https://telegra.ph/c", "", "")
	require.True(t, adm.Allowed)
	r.DequeueBatch(2)
	clock.Advance(48 * time.Hour)
	assert.Equal(t, []int64{1, 2}, r.DueReminders(), "new cooldown re-arms the reminder")
}

func owners(subs []models.Submission) []int64 {
	out := make([]int64, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.OwnerID)
	}
	return out
}
