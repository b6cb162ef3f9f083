package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reading-club-system/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// clubState is the singleton row holding snapshot-level fields.
type clubState struct {
	ID             int       `gorm:"primaryKey;autoIncrement:false"`
	Version        int       `gorm:"not null"`
	TakenAt        time.Time `gorm:"not null"`
	PublishedToday int       `gorm:"not null;default:0"`
}

func (clubState) TableName() string { return "club_state" }

// Rows below carry Seq so that in-memory ordering survives a round trip.

type ledgerRow struct {
	Seq int `gorm:"not null;index"`
	models.LedgerEntry
}

func (ledgerRow) TableName() string { return "ledger_entries" }

type submissionRow struct {
	Seq int `gorm:"not null;index"`
	models.Submission
}

func (submissionRow) TableName() string { return "submissions" }

type duelRow struct {
	ID                 string `gorm:"primaryKey;type:uuid"`
	Seq                int    `gorm:"not null;index"`
	Kind               string `gorm:"not null;index"`
	Topic              string `gorm:"not null"`
	InitiatorID        int64
	Status             models.DuelStatus `gorm:"not null;index"`
	Prize              int64
	Stake              int64
	CreatedAt          time.Time
	CollectionDeadline time.Time `gorm:"not null"`
	VoteDeadline       time.Time `gorm:"not null"`
	ResolvedAt         *time.Time
	WinnerID           *int64
}

func (duelRow) TableName() string { return "duels" }

func newDuelRow(seq int, d models.Duel) duelRow {
	return duelRow{
		ID:                 d.ID,
		Seq:                seq,
		Kind:               d.Kind,
		Topic:              d.Topic,
		InitiatorID:        d.InitiatorID,
		Status:             d.Status,
		Prize:              d.Prize,
		Stake:              d.Stake,
		CreatedAt:          d.CreatedAt,
		CollectionDeadline: d.CollectionDeadline,
		VoteDeadline:       d.VoteDeadline,
		ResolvedAt:         d.ResolvedAt,
		WinnerID:           d.WinnerID,
	}
}

func (r duelRow) duel() models.Duel {
	return models.Duel{
		ID:                 r.ID,
		Kind:               r.Kind,
		Topic:              r.Topic,
		InitiatorID:        r.InitiatorID,
		Status:             r.Status,
		Prize:              r.Prize,
		Stake:              r.Stake,
		CreatedAt:          r.CreatedAt,
		CollectionDeadline: r.CollectionDeadline,
		VoteDeadline:       r.VoteDeadline,
		ResolvedAt:         r.ResolvedAt,
		WinnerID:           r.WinnerID,
	}
}

// PostgresStore writes each snapshot into normalized tables, replacing the
// previous contents in a single transaction.
type PostgresStore struct {
	DB *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL required for postgres storage")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresStore(db)
}

func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(
		&clubState{},
		&models.Member{},
		&models.Account{},
		&ledgerRow{},
		&submissionRow{},
		&models.CooldownState{},
		&duelRow{},
		&models.DuelEntry{},
		&models.DuelVote{},
		&models.JobMarker{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

var snapshotTables = []interface{}{
	&models.DuelVote{},
	&models.DuelEntry{},
	&duelRow{},
	&models.CooldownState{},
	&submissionRow{},
	&ledgerRow{},
	&models.Account{},
	&models.Member{},
	&models.JobMarker{},
}

func (s *PostgresStore) Save(ctx context.Context, snap *models.Snapshot) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wipe := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, table := range snapshotTables {
			if err := wipe.Delete(table).Error; err != nil {
				return fmt.Errorf("clear %T: %w", table, err)
			}
		}

		state := clubState{ID: 1, Version: snap.Version, TakenAt: snap.TakenAt, PublishedToday: snap.PublishedToday}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&state).Error; err != nil {
			return fmt.Errorf("write club state: %w", err)
		}

		if err := createAll(tx, snap.Members); err != nil {
			return fmt.Errorf("write members: %w", err)
		}
		if err := createAll(tx, snap.Accounts); err != nil {
			return fmt.Errorf("write accounts: %w", err)
		}
		if err := createAll(tx, sequenced(snap.LedgerEntries, func(i int, e models.LedgerEntry) ledgerRow {
			return ledgerRow{Seq: i, LedgerEntry: e}
		})); err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
		if err := createAll(tx, sequenced(snap.Submissions, func(i int, sub models.Submission) submissionRow {
			return submissionRow{Seq: i, Submission: sub}
		})); err != nil {
			return fmt.Errorf("write submissions: %w", err)
		}
		if err := createAll(tx, snap.Cooldowns); err != nil {
			return fmt.Errorf("write cooldowns: %w", err)
		}

		var entries []models.DuelEntry
		var votes []models.DuelVote
		for _, d := range snap.Duels {
			entries = append(entries, d.Entries...)
			votes = append(votes, d.Votes...)
		}
		if err := createAll(tx, sequenced(snap.Duels, newDuelRow)); err != nil {
			return fmt.Errorf("write duels: %w", err)
		}
		if err := createAll(tx, entries); err != nil {
			return fmt.Errorf("write duel entries: %w", err)
		}
		if err := createAll(tx, votes); err != nil {
			return fmt.Errorf("write duel votes: %w", err)
		}
		if err := createAll(tx, snap.JobMarkers); err != nil {
			return fmt.Errorf("write job markers: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Load(ctx context.Context) (*models.Snapshot, error) {
	db := s.DB.WithContext(ctx)

	var state clubState
	if err := db.First(&state, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read club state: %w", err)
	}

	snap := &models.Snapshot{
		Version:        state.Version,
		TakenAt:        state.TakenAt,
		PublishedToday: state.PublishedToday,
		Members:        []models.Member{},
		Accounts:       []models.Account{},
		Submissions:    []models.Submission{},
		Cooldowns:      []models.CooldownState{},
		Duels:          []models.Duel{},
		JobMarkers:     []models.JobMarker{},
	}

	if err := db.Order("id").Find(&snap.Members).Error; err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	if err := db.Order("id").Find(&snap.Accounts).Error; err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}

	var ledger []ledgerRow
	if err := db.Order("seq").Find(&ledger).Error; err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	for _, row := range ledger {
		snap.LedgerEntries = append(snap.LedgerEntries, row.LedgerEntry)
	}

	var subs []submissionRow
	if err := db.Order("seq").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	for _, row := range subs {
		snap.Submissions = append(snap.Submissions, row.Submission)
	}

	if err := db.Order("owner_id").Find(&snap.Cooldowns).Error; err != nil {
		return nil, fmt.Errorf("read cooldowns: %w", err)
	}

	var duels []duelRow
	if err := db.Order("seq").Find(&duels).Error; err != nil {
		return nil, fmt.Errorf("read duels: %w", err)
	}
	var entries []models.DuelEntry
	if err := db.Order("duel_id, position").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read duel entries: %w", err)
	}
	var votes []models.DuelVote
	if err := db.Order("duel_id, cast_at, voter_id").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("read duel votes: %w", err)
	}
	entriesByDuel := make(map[string][]models.DuelEntry)
	for _, e := range entries {
		entriesByDuel[e.DuelID] = append(entriesByDuel[e.DuelID], e)
	}
	votesByDuel := make(map[string][]models.DuelVote)
	for _, v := range votes {
		votesByDuel[v.DuelID] = append(votesByDuel[v.DuelID], v)
	}
	for _, row := range duels {
		d := row.duel()
		d.Entries = entriesByDuel[d.ID]
		d.Votes = votesByDuel[d.ID]
		snap.Duels = append(snap.Duels, d)
	}

	if err := db.Order("key").Find(&snap.JobMarkers).Error; err != nil {
		return nil, fmt.Errorf("read job markers: %w", err)
	}

	log.Printf("[Storage] loaded snapshot from postgres: members=%d submissions=%d duels=%d",
		len(snap.Members), len(snap.Submissions), len(snap.Duels))
	return snap, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func createAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Omit(clause.Associations).CreateInBatches(rows, 200).Error
}

func sequenced[T, R any](in []T, fn func(int, T) R) []R {
	out := make([]R, 0, len(in))
	for i, v := range in {
		out = append(out, fn(i, v))
	}
	return out
}
