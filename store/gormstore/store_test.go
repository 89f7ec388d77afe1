package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/arloliu/fillsched/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *Store) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	store := New(db)
	store.now = func() time.Time { return fixedNow }

	return mock, store
}

var canisterColumns = []string{
	"id", "run_id", "status", "device_id", "quadrant", "trolley_id", "location_id",
	"order_no", "trolley_sequence", "station_id", "operator_id", "misplaced", "updated_at",
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectQuery(`SELECT "status" FROM "fill_canisters" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("IN_PROGRESS"))

		status, err := store.Status(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, types.StatusInProgress, status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectQuery(`SELECT "status" FROM "fill_canisters"`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		_, err := store.Status(ctx, "missing")
		require.ErrorIs(t, err, types.ErrCanisterNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown value", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectQuery(`SELECT "status" FROM "fill_canisters"`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("BROKEN"))

		_, err := store.Status(ctx, "c1")
		require.ErrorContains(t, err, "unknown status")
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("updates row", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectExec(`UPDATE "fill_canisters" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetStatus(ctx, "c1", types.StatusFilled))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectExec(`UPDATE "fill_canisters" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.SetStatus(ctx, "missing", types.StatusFilled)
		require.ErrorIs(t, err, types.ErrCanisterNotFound)
	})
}

func TestCanister(t *testing.T) {
	ctx := context.Background()
	mock, store := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "fill_canisters" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(canisterColumns).AddRow(
			"c1", "run-1", "PENDING", "D1", 2, "A", "A-1-1",
			101, 1, "S1", nil, false, fixedNow,
		))
	mock.ExpectQuery(`SELECT \* FROM "fill_canister_slots" WHERE "fill_canister_slots"."canister_id" = \$1 ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"canister_id", "position", "pack_id", "drug_id", "status"}).
			AddRow("c1", 0, "P1", "aspirin", "PENDING").
			AddRow("c1", 1, "P3", "aspirin", "FILLED"))

	c, err := store.Canister(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, types.CanisterID("c1"), c.ID)
	assert.Equal(t, types.StatusPending, c.Status)
	assert.Equal(t, types.Quadrant(2), c.Quadrant)
	require.NotNil(t, c.TrolleyID)
	assert.Equal(t, types.TrolleyID("A"), *c.TrolleyID)
	require.NotNil(t, c.OrderNo)
	assert.Equal(t, int64(101), *c.OrderNo)
	assert.Nil(t, c.OperatorID)
	require.Len(t, c.Slots, 2)
	assert.Equal(t, types.PackID("P3"), c.Slots[1].PackID)
	assert.Equal(t, types.SlotFilled, c.Slots[1].Status)

	t.Run("not found", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "fill_canisters"`).
			WillReturnRows(sqlmock.NewRows(canisterColumns))

		_, err := store.Canister(ctx, "missing")
		require.ErrorIs(t, err, types.ErrCanisterNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCanistersOnTrolley(t *testing.T) {
	ctx := context.Background()
	mock, store := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "fill_canisters" WHERE trolley_id = \$1 ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(canisterColumns).
			AddRow("c1", "run-1", "FILLED", "D1", 1, "A", "A-1-1", 101, 1, "S1", nil, false, fixedNow).
			AddRow("c2", "run-1", "PENDING", "D1", 1, "A", "A-1-2", 102, 1, "S1", nil, true, fixedNow))
	mock.ExpectQuery(`SELECT \* FROM "fill_canister_slots" WHERE "fill_canister_slots"."canister_id" IN`).
		WillReturnRows(sqlmock.NewRows([]string{"canister_id", "position", "pack_id", "drug_id", "status"}).
			AddRow("c2", 0, "P2", "ibuprofen", "PENDING"))

	got, err := store.CanistersOnTrolley(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, got, 2)
	assert.Empty(t, got[0].Slots)
	assert.True(t, got[1].Misplaced)
	require.Len(t, got[1].Slots, 1)
	assert.Equal(t, "ibuprofen", got[1].Slots[0].DrugID)
}

func commitFixture() types.Commit {
	trolley := types.TrolleyID("A")
	station := types.StationID("S1")

	return types.Commit{
		RunID:       "run-1",
		Fingerprint: 0xdeadbeef,
		Canisters: []types.Canister{
			{
				ID: "c1", Status: types.StatusPending, DeviceID: "D1", Quadrant: 1,
				TrolleyID: &trolley, LocationID: types.Ptr(types.LocationID("A-1-1")),
				OrderNo: types.Ptr(int64(1)), TrolleySequence: types.Ptr(int64(1)),
				StationID: &station, RunID: "run-1",
				Slots: []types.DrugSlot{{PackID: "P1", DrugID: "aspirin"}},
			},
			{
				ID: "c2", Status: types.StatusPending, DeviceID: "D1", Quadrant: 1,
				TrolleyID: &trolley, OrderNo: types.Ptr(int64(2)), TrolleySequence: types.Ptr(int64(1)),
				StationID: &station, RunID: "run-1",
			},
		},
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("writes run and canisters in one transaction", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "fill_runs"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "fill_canisters" .* ON CONFLICT \("id"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`DELETE FROM "fill_canister_slots" WHERE canister_id IN`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO "fill_canister_slots"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.Commit(ctx, commitFixture()))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate run rolls back", func(t *testing.T) {
		mock, store := setupMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "fill_runs"`).
			WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
		mock.ExpectRollback()

		err := store.Commit(ctx, commitFixture())
		require.ErrorIs(t, err, types.ErrRunAlreadyCommitted)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("slot failure rolls back", func(t *testing.T) {
		mock, store := setupMockStore(t)
		boom := errors.New("disk full")
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "fill_runs"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "fill_canisters"`).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`DELETE FROM "fill_canister_slots"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO "fill_canister_slots"`).WillReturnError(boom)
		mock.ExpectRollback()

		err := store.Commit(ctx, commitFixture())
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, types.ErrRunAlreadyCommitted)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveCanisterWithoutSlots(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "fill_canisters"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "fill_canister_slots"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	c := commitFixture().Canisters[1]
	require.NoError(t, store.SaveCanister(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHighWater(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(order_no\), 0\) AS order_no`).
		WillReturnRows(sqlmock.NewRows([]string{"order_no", "trolley_sequence"}).AddRow(105, 3))

	orderNo, trip, err := store.HighWater(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(105), orderNo)
	assert.Equal(t, int64(3), trip)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowConversion(t *testing.T) {
	c := commitFixture().Canisters[0]
	c.Slots = append(c.Slots, types.DrugSlot{PackID: "P2", DrugID: "aspirin", Status: types.SlotRTSRequired})

	row := toRow(c)
	require.Len(t, row.Slots, 2)
	assert.Equal(t, 1, row.Slots[1].Position)
	assert.Equal(t, "RTS_REQUIRED", row.Slots[1].Status)
	assert.Nil(t, row.OperatorID)

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
