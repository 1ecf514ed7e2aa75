package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/catalog"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/ingest"
	"github.com/safar/qr-stock/internal/models"
	"github.com/safar/qr-stock/internal/qr"
	"github.com/safar/qr-stock/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, pg *store.Postgres, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, PasswordHash: "hash", Role: role}
	require.NoError(t, pg.CreateUser(context.Background(), u))
	return u
}

func stockItem(name string, at time.Time) models.StockItem {
	return models.StockItem{
		ItemID:    catalog.NewIdentifier(name, at),
		Name:      name,
		Quantity:  10,
		Price:     decimal.RequireFromString("2.5"),
		Category:  "Grocery",
		CreatedAt: at,
	}
}

func TestCreateBatchCommitsAnnotatedItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	owner := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)

	engine, err := qr.New("http://localhost:3000")
	require.NoError(t, err)

	at := time.UnixMilli(1700000000000).UTC()
	created, err := pg.CreateBatch(ctx, owner.ID, []models.StockItem{stockItem("Rice", at), stockItem("Tea", at)}, engine.AnnotateBatch)
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, item := range created {
		got, err := pg.GetStock(ctx, item.ID)
		require.NoError(t, err)
		require.NotNil(t, got.QRCode)
		assert.Equal(t, *item.QRCode, *got.QRCode)
		assert.Equal(t, owner.ID, got.OwnerID)
		assert.Equal(t, 1, got.Version)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("2.5")))
	}

	byItemID, err := pg.GetStockByItemID(ctx, "rice-1700000000000")
	require.NoError(t, err)
	assert.Equal(t, created[0].ID, byItemID.ID)

	reloaded, err := pg.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{created[0].ID, created[1].ID}, reloaded.StockIDs)
}

func TestCreateBatchRollsBackOnAnnotateFailure(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	owner := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)

	boom := errors.New("encoder failed")
	_, err := pg.CreateBatch(ctx, owner.ID, []models.StockItem{stockItem("Rice", time.Now().UTC())},
		func(context.Context, []models.StockItem) error { return boom })
	require.ErrorIs(t, err, boom)

	items, err := pg.ListStock(ctx, models.StockFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	reloaded, err := pg.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.StockIDs)
}

func TestCreateBatchDuplicateIdentifier(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	owner := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)

	at := time.Now().UTC()
	_, err := pg.CreateBatch(ctx, owner.ID, []models.StockItem{stockItem("Rice", at), stockItem("Rice", at)}, nil)
	require.ErrorIs(t, err, database.ErrDuplicateStock)

	items, err := pg.ListStock(ctx, models.StockFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateBatchUnknownOwner(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.NewPostgres(db).CreateBatch(context.Background(), 4242, []models.StockItem{stockItem("Rice", time.Now().UTC())}, nil)
	require.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestListStockFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	u1 := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)
	u2 := createUser(t, pg, "u2@example.com", models.RoleShopkeeper)

	t0 := time.UnixMilli(1700000000000).UTC()
	_, err := pg.CreateBatch(ctx, u1.ID, []models.StockItem{stockItem("Rice", t0)}, nil)
	require.NoError(t, err)
	_, err = pg.CreateBatch(ctx, u1.ID, []models.StockItem{stockItem("100% Juice", t0.Add(time.Second))}, nil)
	require.NoError(t, err)
	_, err = pg.CreateBatch(ctx, u2.ID, []models.StockItem{stockItem("Brown rice", t0.Add(2*time.Second))}, nil)
	require.NoError(t, err)

	all, err := pg.ListStock(ctx, models.StockFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Brown rice", all[0].Name)
	assert.Equal(t, "Rice", all[2].Name)

	own, err := pg.ListStock(ctx, models.StockFilter{OwnerID: &u1.ID})
	require.NoError(t, err)
	assert.Len(t, own, 2)

	rice, err := pg.ListStock(ctx, models.StockFilter{Query: "RICE"})
	require.NoError(t, err)
	assert.Len(t, rice, 2)

	ownRice, err := pg.ListStock(ctx, models.StockFilter{OwnerID: &u2.ID, Query: "rice"})
	require.NoError(t, err)
	require.Len(t, ownRice, 1)
	assert.Equal(t, "Brown rice", ownRice[0].Name)

	percent, err := pg.ListStock(ctx, models.StockFilter{Query: "%"})
	require.NoError(t, err)
	require.Len(t, percent, 1)
	assert.Equal(t, "100% Juice", percent[0].Name)

	byCategory, err := pg.ListStock(ctx, models.StockFilter{Query: "grocery"})
	require.NoError(t, err)
	assert.Len(t, byCategory, 3)

	none, err := pg.ListStock(ctx, models.StockFilter{Query: "no-such-token"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateStockOptimistic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	owner := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)

	created, err := pg.CreateBatch(ctx, owner.ID, []models.StockItem{stockItem("Rice", time.Now().UTC())}, nil)
	require.NoError(t, err)
	item := created[0]

	qty := 40
	updated, err := pg.UpdateStock(ctx, item.ID, models.StockPatch{Quantity: &qty}, &item.Version)
	require.NoError(t, err, "first update should succeed")
	assert.Equal(t, 40, updated.Quantity)
	assert.Equal(t, "Rice", updated.Name)
	assert.Equal(t, 2, updated.Version)

	qty = 30
	_, err = pg.UpdateStock(ctx, item.ID, models.StockPatch{Quantity: &qty}, &item.Version)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = pg.UpdateStock(ctx, uuid.New(), models.StockPatch{Quantity: &qty}, &item.Version)
	assert.ErrorIs(t, err, database.ErrStockNotFound)

	negative := -1
	_, err = pg.UpdateStock(ctx, item.ID, models.StockPatch{Quantity: &negative}, nil)
	assert.True(t, database.IsCheckViolation(err), "got %v", err)
}

func TestDeleteStockRemovesBackReference(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	owner := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)

	at := time.Now().UTC()
	created, err := pg.CreateBatch(ctx, owner.ID, []models.StockItem{stockItem("Rice", at), stockItem("Tea", at)}, nil)
	require.NoError(t, err)

	require.NoError(t, pg.DeleteStock(ctx, created[0].ID))

	_, err = pg.GetStock(ctx, created[0].ID)
	assert.ErrorIs(t, err, database.ErrStockNotFound)

	reloaded, err := pg.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{created[1].ID}, reloaded.StockIDs)

	assert.ErrorIs(t, pg.DeleteStock(ctx, created[0].ID), database.ErrStockNotFound)
}

func TestConcurrentIngestionForDifferentOwners(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)

	const owners = 5
	users := make([]*models.User, owners)
	for i := range users {
		users[i] = createUser(t, pg, fmt.Sprintf("u%d@example.com", i), models.RoleShopkeeper)
	}

	var wg sync.WaitGroup
	errs := make(chan error, owners)
	at := time.Now().UTC()

	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("Item %d", i)
			_, err := pg.CreateBatch(ctx, u.ID, []models.StockItem{stockItem(name, at), stockItem(name+" b", at)}, nil)
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ingestion failed: %v", err)
	}

	all, err := pg.ListStock(ctx, models.StockFilter{})
	require.NoError(t, err)
	assert.Len(t, all, owners*2)
}

func TestUsers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)

	u := createUser(t, pg, "ada@example.com", models.RoleAdmin)
	assert.NotZero(t, u.ID)
	assert.Empty(t, u.StockIDs)

	err := pg.CreateUser(ctx, &models.User{Name: "x", Email: "ada@example.com", PasswordHash: "h", Role: models.RoleShopkeeper})
	assert.ErrorIs(t, err, database.ErrEmailTaken)

	got, err := pg.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	_, err = pg.GetUser(ctx, 999)
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestCatalogScenarioOnPostgres(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := store.NewPostgres(db)
	u1 := createUser(t, pg, "u1@example.com", models.RoleShopkeeper)
	u2 := createUser(t, pg, "u2@example.com", models.RoleShopkeeper)
	admin := createUser(t, pg, "admin@example.com", models.RoleAdmin)

	engine, err := qr.New("http://localhost:3000")
	require.NoError(t, err)
	svc := catalog.New(pg, engine, catalog.WithTimeout(10*time.Second))

	owner := models.Identity{UserID: u1.ID, Role: u1.Role}
	items, err := svc.InsertBatch(ctx, owner, []ingest.Record{{Fields: map[string]string{"name": "Rice", "quantity": "10", "price": "2.5", "category": "Grocery"}}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Regexp(t, `^rice-\d+$`, items[0].ItemID)
	require.NotNil(t, items[0].QRCode)

	found, err := svc.Search(ctx, models.Identity{UserID: admin.ID, Role: admin.Role}, "rice")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = svc.Search(ctx, models.Identity{UserID: u2.ID, Role: u2.Role}, "rice")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = svc.Get(ctx, models.Identity{UserID: u2.ID, Role: models.RoleShopkeeper}, items[0].ID.String())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, owner, items[0].ItemID))
	_, err = svc.Get(ctx, owner, items[0].ItemID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
