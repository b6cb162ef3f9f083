package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"reading-club-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate builds a club with members, a queue, a published article,
// a finished duel and an open one.
func populate(t *testing.T, clock *fakeClock) *Club {
	t.Helper()
	club := newTestClub(clock, &recordingNotifier{})
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		club.Members.Register(id, "", "Reader", "")
	}
	_, adm := club.Registry.Submit(1, "https://telegra.ph/a", "A", "first")
	require.True(t, adm.Allowed)
	clock.Advance(time.Minute)
	_, adm = club.Registry.Submit(2, "https://telegra.ph/b", "B", "")
	require.True(t, adm.Allowed)
	clock.Advance(time.Minute)
	_, adm = club.Registry.Submit(3, "https://telegra.ph/c", "C", "")
	require.True(t, adm.Allowed)
	club.PublishNow(ctx, 1)

	d, err := club.StartDuel(ctx, DuelOptions{Topic: "Snow"})
	require.NoError(t, err)
	require.Equal(t, EntryAccepted, club.Engine.SubmitEntry(d.ID, 1, "white"))
	require.Equal(t, EntryAccepted, club.Engine.SubmitEntry(d.ID, 2, "cold"))
	clock.Advance(time.Hour)
	club.SweepDuels()
	require.Equal(t, VoteAccepted, club.Engine.CastVote(d.ID, 3, 1))
	clock.Advance(30 * time.Minute)
	club.SweepDuels()

	d2, err := club.StartDuel(ctx, DuelOptions{Topic: "Fog"})
	require.NoError(t, err)
	require.Equal(t, EntryAccepted, club.Engine.SubmitEntry(d2.ID, 3, "grey"))

	granted, _, err := club.Members.ClaimDaily(2)
	require.NoError(t, err)
	require.True(t, granted)
	club.Markers.RunOnce(models.JobDailyPublish, "2026-03-02", func() {})
	return club
}

func TestClubSnapshotRoundTrip(t *testing.T) {
	clock := newFakeClock()
	club := populate(t, clock)
	snap := club.Snapshot()

	assert.Equal(t, models.SnapshotVersion, snap.Version)
	assert.Len(t, snap.Members, 3)
	assert.Len(t, snap.Submissions, 3)
	assert.Len(t, snap.Duels, 2)
	assert.Equal(t, 1, snap.PublishedToday)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded models.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := newTestClub(clock, &recordingNotifier{})
	require.NoError(t, restored.Restore(&decoded))
	assert.Equal(t, snap, restored.Snapshot())

	assert.Equal(t, club.Ledger.Balance(1), restored.Ledger.Balance(1))
	assert.Equal(t, []int64{2, 3}, owners(restored.Registry.ListQueue(0)))
	adm := restored.Registry.CanSubmit(2)
	assert.Equal(t, AdmissionDuplicate, adm.Reason)

	active, ok := restored.Engine.Active()
	require.True(t, ok)
	assert.Equal(t, "Fog", active.Topic)
	assert.Equal(t, EntryDuplicate, restored.Engine.SubmitEntry(active.ID, 3, "again"))

	granted, _, err := restored.Members.ClaimDaily(2)
	require.NoError(t, err)
	assert.False(t, granted, "daily marker survives restore")
}

func TestClubRestoreRejectsNewerVersion(t *testing.T) {
	club := newTestClub(newFakeClock(), nil)
	assert.Error(t, club.Restore(nil))
	assert.Error(t, club.Restore(&models.Snapshot{Version: models.SnapshotVersion + 1}))
}

func TestClubPayoutAndStatusCapturedTogether(t *testing.T) {
	clock := newFakeClock()
	club := populate(t, clock)
	snap := club.Snapshot()

	var finished *models.Duel
	for i := range snap.Duels {
		if snap.Duels[i].Status == models.DuelStatusFinished {
			finished = &snap.Duels[i]
		}
	}
	require.NotNil(t, finished)
	require.NotNil(t, finished.WinnerID)

	wins := 0
	for _, e := range snap.LedgerEntries {
		if e.Reason == models.ReasonDuelWin && e.AccountID == *finished.WinnerID {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	for _, m := range snap.Members {
		if m.ID == *finished.WinnerID {
			assert.Equal(t, 1, m.DuelsWon, "win counter travels with the payout")
		} else {
			assert.Zero(t, m.DuelsWon)
		}
	}
}

func TestSnapshotDuringSweepSeesWinCounterWithPayout(t *testing.T) {
	clock := newFakeClock()
	club := newTestClub(clock, &recordingNotifier{})
	for _, id := range []int64{1, 2, 3} {
		club.Members.Register(id, "", "Reader", "")
	}
	d, err := club.StartDuel(context.Background(), DuelOptions{Topic: "Rain"})
	require.NoError(t, err)
	require.Equal(t, EntryAccepted, club.Engine.SubmitEntry(d.ID, 1, "drops"))
	require.Equal(t, EntryAccepted, club.Engine.SubmitEntry(d.ID, 2, "puddles"))
	clock.Advance(time.Hour)
	club.SweepDuels()
	require.Equal(t, VoteAccepted, club.Engine.CastVote(d.ID, 3, 2))
	clock.Advance(30 * time.Minute)

	snaps := make(chan *models.Snapshot, 64)
	done := make(chan struct{})
	go func() {
		defer close(snaps)
		for {
			select {
			case <-done:
				return
			default:
			}
			select {
			case snaps <- club.Snapshot():
			default:
			}
		}
	}()
	club.SweepDuels()
	close(done)

	check := func(snap *models.Snapshot) {
		finished := snap.Duels[0].Status == models.DuelStatusFinished
		paid := false
		for _, e := range snap.LedgerEntries {
			if e.Reason == models.ReasonDuelWin {
				paid = true
			}
		}
		wins := 0
		for _, m := range snap.Members {
			wins += m.DuelsWon
		}
		assert.Equal(t, finished, paid)
		if finished {
			assert.Equal(t, 1, wins)
		} else {
			assert.Zero(t, wins)
		}
	}
	for snap := range snaps {
		check(snap)
	}
	check(club.Snapshot())
}

func TestMembersRegistration(t *testing.T) {
	clock := newFakeClock()
	club := newTestClub(clock, nil)

	m, created := club.Members.Register(5, "vera", "Vera", "K")
	assert.True(t, created)
	assert.Equal(t, models.MemberStatusActive, m.Status)
	assert.Equal(t, int64(50), club.Ledger.Balance(5))

	_, created = club.Members.Register(5, "vera", "Vera", "K")
	assert.False(t, created)
	assert.Equal(t, int64(50), club.Ledger.Balance(5), "bonus only once")

	club.Members.RecordArticle(5)
	club.Members.RecordDuelEntry(5)
	clock.Advance(time.Hour)
	club.Members.Touch(5)

	m, err := club.Members.Get(5)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ArticlesCount)
	assert.Equal(t, 1, m.GamesPlayed)
	assert.Equal(t, clock.Now(), m.LastActiveAt)
	assert.Equal(t, "@vera", m.DisplayName())

	_, err = club.Members.Get(6)
	assert.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, club.Members.Archive(5))
	m, _ = club.Members.Get(5)
	assert.Equal(t, models.MemberStatusArchived, m.Status)
}

func TestMembersClaimDaily(t *testing.T) {
	clock := newFakeClock()
	club := newTestClub(clock, nil)

	_, _, err := club.Members.ClaimDaily(1)
	assert.ErrorIs(t, err, ErrNotRegistered)

	club.Members.Register(1, "", "", "")
	granted, bal, err := club.Members.ClaimDaily(1)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int64(55), bal)

	clock.Advance(10 * time.Hour)
	granted, bal, err = club.Members.ClaimDaily(1)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, int64(55), bal)

	clock.Advance(10 * time.Hour) // next calendar day
	granted, bal, err = club.Members.ClaimDaily(1)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int64(60), bal)
}
