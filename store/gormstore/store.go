// Package gormstore persists canister records and committed runs with gorm.
//
// The Store implements both types.CanisterStore and types.AssignmentCommitter,
// so a scheduler and the fill-station status machine can share one database.
// Postgres is the target dialect; any gorm dialector that supports
// ON CONFLICT upserts works.
//
// Example:
//
//	store, err := gormstore.Open(dsn)
//	if err != nil {
//	    return err
//	}
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//	sched, err := fillsched.NewScheduler(cfg, fillsched.Collaborators{
//	    Canisters: store,
//	    Committer: store,
//	    // ...
//	})
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/arloliu/fillsched/types"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Postgres error code for unique_violation.
const pgErrUniqueViolation = "23505"

// Store is a gorm-backed canister store and assignment committer.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ types.CanisterStore       = (*Store)(nil)
	_ types.AssignmentCommitter = (*Store)(nil)
)

// New wraps an opened gorm database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects to Postgres and wraps the connection.
//
// Parameters:
//   - dsn: Postgres connection string
//
// Returns:
//   - *Store: Store on the new connection pool
//   - error: Connection error
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(32)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db), nil
}

// Migrate creates or updates the store's tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("migrate fill tables: %w", err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Status returns the current status of a canister.
func (s *Store) Status(ctx context.Context, id types.CanisterID) (types.CanisterStatus, error) {
	var statuses []string
	err := s.db.WithContext(ctx).
		Model(&canisterRow{}).
		Where("id = ?", string(id)).
		Limit(1).
		Pluck("status", &statuses).Error
	if err != nil {
		return 0, fmt.Errorf("read status of %s: %w", id, err)
	}
	if len(statuses) == 0 {
		return 0, fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}

	status, ok := types.ParseCanisterStatus(statuses[0])
	if !ok {
		return 0, &unknownStatusError{canister: string(id), value: statuses[0]}
	}

	return status, nil
}

// SetStatus overwrites the status of a canister.
func (s *Store) SetStatus(ctx context.Context, id types.CanisterID, status types.CanisterStatus) error {
	res := s.db.WithContext(ctx).
		Model(&canisterRow{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{"status": status.String(), "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("write status of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}

	return nil
}

// Canister returns the full record of a canister.
func (s *Store) Canister(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	var rows []canisterRow
	err := s.withSlots(ctx).
		Where("id = ?", string(id)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return types.Canister{}, fmt.Errorf("read canister %s: %w", id, err)
	}
	if len(rows) == 0 {
		return types.Canister{}, fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}

	return fromRow(rows[0])
}

// SaveCanister creates or replaces the full record of a canister.
func (s *Store) SaveCanister(ctx context.Context, c types.Canister) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsert(tx, []types.Canister{c})
	})
}

// CanistersOnTrolley returns every canister whose home trolley is trolley, ordered by ID.
func (s *Store) CanistersOnTrolley(ctx context.Context, trolley types.TrolleyID) ([]types.Canister, error) {
	var rows []canisterRow
	err := s.withSlots(ctx).
		Where("trolley_id = ?", string(trolley)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read canisters on trolley %s: %w", trolley, err)
	}

	out := make([]types.Canister, 0, len(rows))
	for _, row := range rows {
		c, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, nil
}

// Commit writes every canister of a run together with the run record.
//
// The run ID is the primary key of the run table, so committing the same run
// twice fails with types.ErrRunAlreadyCommitted and writes nothing.
//
// Parameters:
//   - ctx: Context for the transaction
//   - commit: Canisters and run metadata to persist
//
// Returns:
//   - error: Transaction error; on error no row was written
func (s *Store) Commit(ctx context.Context, commit types.Commit) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := runRow{
			RunID:       commit.RunID,
			Fingerprint: strconv.FormatUint(commit.Fingerprint, 16),
			Canisters:   len(commit.Canisters),
			CommittedAt: s.now(),
		}
		if err := tx.Create(&run).Error; err != nil {
			return err
		}

		return s.upsert(tx, commit.Canisters)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", types.ErrRunAlreadyCommitted, commit.RunID)
	}
	if err != nil {
		return fmt.Errorf("commit run %s: %w", commit.RunID, err)
	}

	return nil
}

// HighWater returns the highest committed order number and trolley sequence.
func (s *Store) HighWater(ctx context.Context) (int64, int64, error) {
	var hw struct {
		OrderNo         int64
		TrolleySequence int64
	}
	err := s.db.WithContext(ctx).
		Model(&canisterRow{}).
		Select("COALESCE(MAX(order_no), 0) AS order_no, COALESCE(MAX(trolley_sequence), 0) AS trolley_sequence").
		Scan(&hw).Error
	if err != nil {
		return 0, 0, fmt.Errorf("read high water: %w", err)
	}

	return hw.OrderNo, hw.TrolleySequence, nil
}

func (s *Store) withSlots(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Slots", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

// upsert replaces the canister rows and their slots inside tx.
func (s *Store) upsert(tx *gorm.DB, canisters []types.Canister) error {
	if len(canisters) == 0 {
		return nil
	}

	now := s.now()
	rows := make([]canisterRow, len(canisters))
	ids := make([]string, len(canisters))
	var slots []slotRow
	for i, c := range canisters {
		rows[i] = toRow(c)
		rows[i].UpdatedAt = now
		ids[i] = rows[i].ID
		slots = append(slots, rows[i].Slots...)
	}

	err := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return err
	}
	if err := tx.Where("canister_id IN ?", ids).Delete(&slotRow{}).Error; err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}

	return tx.Create(&slots).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
