package order_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
	"github.com/vasiliy-maslov/restaurant-pos/internal/payment"
)

var testDB *db.Postgres

// TestMain connects to DB_HOST_TEST when set; repository tests skip otherwise.
func TestMain(m *testing.M) {
	if host := os.Getenv("DB_HOST_TEST"); host != "" {
		cfg := config.PostgresConfig{
			Host:            host,
			Port:            envOr("DB_PORT_TEST", "5432"),
			User:            envOr("DB_USER_TEST", "postgres"),
			Password:        os.Getenv("DB_PASSWORD_TEST"),
			DBName:          envOr("DB_NAME_TEST", "restaurant_test"),
			SSLMode:         "disable",
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 5 * time.Minute,
			MigrationsPath:  "../../migrations",
		}
		if err := db.Migrate(cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate test database")
		}
		var err error
		testDB, err = db.New(context.Background(), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to test database")
		}
	}

	code := m.Run()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type seed struct {
	tables []uuid.UUID
	menu   uuid.UUID
}

func setup(t *testing.T, tables int) (order.Repository, seed) {
	t.Helper()
	if testDB == nil {
		t.Skip("DB_HOST_TEST not set")
	}

	ctx := context.Background()
	truncate := func() {
		_, err := testDB.Pool.Exec(ctx, "TRUNCATE orders, order_tables, payments, tables, layouts, menu_items CASCADE")
		require.NoError(t, err, "Failed to truncate tables")
	}
	truncate()
	t.Cleanup(truncate)

	var s seed
	layout := uuid.Must(uuid.NewV4())
	_, err := testDB.Pool.Exec(ctx, `INSERT INTO layouts (id, name) VALUES ($1, 'Sala')`, layout)
	require.NoError(t, err)
	for i := 0; i < tables; i++ {
		id := uuid.Must(uuid.NewV4())
		_, err := testDB.Pool.Exec(ctx, `INSERT INTO tables (id, layout_id, table_number) VALUES ($1, $2, $3)`, id, layout, i+1)
		require.NoError(t, err)
		s.tables = append(s.tables, id)
	}
	s.menu = uuid.Must(uuid.NewV4())
	_, err = testDB.Pool.Exec(ctx, `INSERT INTO menu_items (id, name, price) VALUES ($1, 'Bitoque', 9.50)`, s.menu)
	require.NoError(t, err)

	return order.NewRepository(testDB.Pool), s
}

func newOrder(menu uuid.UUID, tables ...uuid.UUID) *order.Order {
	return &order.Order{
		ID:         uuid.Must(uuid.NewV4()),
		TableIDs:   tables,
		MenuItemID: menu,
		Status:     order.StatusPending,
		Price:      decimal.RequireFromString("9.50"),
	}
}

func tableStatus(t *testing.T, id uuid.UUID) catalog.TableStatus {
	t.Helper()
	var status string
	err := testDB.Pool.QueryRow(context.Background(), `SELECT status FROM tables WHERE id = $1`, id).Scan(&status)
	require.NoError(t, err)
	return catalog.TableStatus(status)
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	repo, s := setup(t, 2)
	ctx := context.Background()

	o := newOrder(s.menu, s.tables[1], s.tables[0])
	changed, err := repo.Create(ctx, []*order.Order{o})
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s.tables[1], s.tables[0]}, got.TableIDs, "table order is preserved")
	assert.Equal(t, "Bitoque", got.MenuItemName)
	assert.True(t, o.Price.Equal(got.Price))
	assert.Equal(t, catalog.TableOccupied, tableStatus(t, s.tables[0]))
}

func TestPostgresRepository_CreateBatchRollsBack(t *testing.T) {
	repo, s := setup(t, 1)
	ctx := context.Background()

	good := newOrder(s.menu, s.tables[0])
	bad := newOrder(s.menu, uuid.Must(uuid.NewV4()))

	_, err := repo.Create(ctx, []*order.Order{good, bad})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	var count int
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&count))
	assert.Zero(t, count)
	assert.Equal(t, catalog.TableFree, tableStatus(t, s.tables[0]))
}

func TestPostgresRepository_UpdateAndDelete(t *testing.T) {
	repo, s := setup(t, 1)
	ctx := context.Background()

	o := newOrder(s.menu, s.tables[0])
	_, err := repo.Create(ctx, []*order.Order{o})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, o.ID, func(cur *order.Order) error {
		cur.Status = order.StatusReady
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, updated.Status)

	_, err = repo.Update(ctx, uuid.Must(uuid.NewV4()), func(*order.Order) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	deleted, changed, err := repo.Delete(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, deleted.ID)
	require.Len(t, changed, 1)
	assert.Equal(t, catalog.TableFree, changed[0].Status)

	_, _, err = repo.Delete(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresRepository_List(t *testing.T) {
	repo, s := setup(t, 2)
	ctx := context.Background()

	a := newOrder(s.menu, s.tables[0])
	b := newOrder(s.menu, s.tables[1])
	_, err := repo.Create(ctx, []*order.Order{a, b})
	require.NoError(t, err)

	byTable, err := repo.List(ctx, order.Filter{TableID: &s.tables[1]})
	require.NoError(t, err)
	require.Len(t, byTable, 1)
	assert.Equal(t, b.ID, byTable[0].ID)

	pending := order.StatusPending
	all, err := repo.List(ctx, order.Filter{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func settle(ctx context.Context, id uuid.UUID) error {
	req := payment.Request{
		OrderIDs: []uuid.UUID{id},
		Methods:  []payment.MethodAmount{{Method: payment.MethodCard, Amount: decimal.RequireFromString("9.50")}},
	}
	_, _, err := payment.NewRepository(testDB.Pool).Settle(ctx, req.OrderIDs, func(orders []order.Order) (*payment.Payment, error) {
		return payment.BuildPayment(req, orders, nil)
	})
	return err
}

func TestPostgresRepository_ConcurrentSettlementsFreeTheTable(t *testing.T) {
	repo, s := setup(t, 1)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		first, second := newOrder(s.menu, s.tables[0]), newOrder(s.menu, s.tables[0])
		_, err := repo.Create(ctx, []*order.Order{first, second})
		require.NoError(t, err)
		require.Equal(t, catalog.TableOccupied, tableStatus(t, s.tables[0]))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, o := range []*order.Order{first, second} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = settle(ctx, o.ID)
			}()
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, catalog.TableFree, tableStatus(t, s.tables[0]), "round %d", round)
	}
}

func TestPostgresRepository_CreateRacingLastSettlementKeepsTableOccupied(t *testing.T) {
	repo, s := setup(t, 1)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		last := newOrder(s.menu, s.tables[0])
		_, err := repo.Create(ctx, []*order.Order{last})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			settleErr error
			createErr error
		)
		fresh := newOrder(s.menu, s.tables[0])
		wg.Add(2)
		go func() {
			defer wg.Done()
			settleErr = settle(ctx, last.ID)
		}()
		go func() {
			defer wg.Done()
			_, createErr = repo.Create(ctx, []*order.Order{fresh})
		}()
		wg.Wait()

		require.NoError(t, settleErr)
		require.NoError(t, createErr)
		assert.Equal(t, catalog.TableOccupied, tableStatus(t, s.tables[0]), "round %d", round)

		require.NoError(t, settle(ctx, fresh.ID))
		assert.Equal(t, catalog.TableFree, tableStatus(t, s.tables[0]))
	}
}
