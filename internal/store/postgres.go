package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/models"
)

// AnnotateFunc decorates freshly inserted items before the batch commits.
type AnnotateFunc func(ctx context.Context, items []models.StockItem) error

// Postgres is the transactional stock and user store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// CreateBatch inserts items, runs annotate on them, stores the resulting QR
// codes and appends the ids to the owner's stock list, all in one
// transaction. Nothing is visible unless every step succeeds.
func (p *Postgres) CreateBatch(ctx context.Context, ownerID int64, items []models.StockItem, annotate AnnotateFunc) ([]models.StockItem, error) {
	var created []models.StockItem

	err := database.WithRetry(ctx, p.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		batch := make([]models.StockItem, len(items))
		copy(batch, items)

		ids := make([]uuid.UUID, 0, len(batch))
		for i := range batch {
			batch[i].OwnerID = ownerID
			if err := InsertStockItem(ctx, tx, &batch[i]); err != nil {
				return err
			}
			ids = append(ids, batch[i].ID)
		}

		if annotate != nil {
			if err := annotate(ctx, batch); err != nil {
				return fmt.Errorf("annotate batch: %w", err)
			}
			for i := range batch {
				if err := SetStockQRCode(ctx, tx, &batch[i]); err != nil {
					return err
				}
			}
		}

		if err := AppendUserStocks(ctx, tx, ownerID, ids); err != nil {
			return err
		}

		created = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (p *Postgres) GetStock(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	return GetStock(ctx, p.db, id)
}

func (p *Postgres) GetStockByItemID(ctx context.Context, itemID string) (*models.StockItem, error) {
	return GetStockByItemID(ctx, p.db, itemID)
}

func (p *Postgres) ListStock(ctx context.Context, filter models.StockFilter) ([]models.StockItem, error) {
	return ListStock(ctx, p.db, filter)
}

func (p *Postgres) UpdateStock(ctx context.Context, id uuid.UUID, patch models.StockPatch, expectedVersion *int) (*models.StockItem, error) {
	return UpdateStock(ctx, p.db, id, patch, expectedVersion)
}

// DeleteStock removes the item and its id from the owner's stock list.
func (p *Postgres) DeleteStock(ctx context.Context, id uuid.UUID) error {
	return database.WithRetry(ctx, p.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ownerID, err := DeleteStockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		return RemoveUserStock(ctx, tx, ownerID, id)
	})
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	return CreateUser(ctx, p.db, user)
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return GetUser(ctx, p.db, id)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return GetUserByEmail(ctx, p.db, email)
}
