package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/models"
)

const stockColumns = `id, item_id, name, quantity, price, category, qr_code, owner_id, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner, item *models.StockItem) error {
	var qr sql.NullString
	err := row.Scan(
		&item.ID,
		&item.ItemID,
		&item.Name,
		&item.Quantity,
		&item.Price,
		&item.Category,
		&qr,
		&item.OwnerID,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	item.QRCode = nil
	if qr.Valid {
		item.QRCode = &qr.String
	}
	return nil
}

// InsertStockItem inserts item and fills in the columns Postgres assigns.
// A zero item.ID is replaced by a fresh UUIDv7.
func InsertStockItem(ctx context.Context, q database.Querier, item *models.StockItem) error {
	if item.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate stock id: %w", err)
		}
		item.ID = id
	}

	query := `
		INSERT INTO stock_items (id, item_id, name, quantity, price, category, owner_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, 1)
		RETURNING ` + stockColumns

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = nowUTC()
	}

	err := scanStock(q.QueryRowContext(ctx, query,
		item.ID, item.ItemID, item.Name, item.Quantity, item.Price, item.Category, item.OwnerID, createdAt,
	), item)
	if err != nil {
		var pqErr *pq.Error
		switch {
		case database.IsUniqueViolation(err):
			if errors.As(err, &pqErr) && pqErr.Detail != "" {
				return fmt.Errorf("%w: %s", database.ErrDuplicateStock, pqErr.Detail)
			}
			return fmt.Errorf("%w: %s", database.ErrDuplicateStock, item.ItemID)
		case errors.As(err, &pqErr) && pqErr.Code == "23503":
			return database.ErrUserNotFound
		}
		return fmt.Errorf("insert stock item: %w", err)
	}

	return nil
}

func SetStockQRCode(ctx context.Context, q database.Querier, item *models.StockItem) error {
	result, err := q.ExecContext(ctx,
		`UPDATE stock_items SET qr_code = $1 WHERE id = $2`,
		item.QRCode, item.ID)
	if err != nil {
		return fmt.Errorf("set qr code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrStockNotFound
	}

	return nil
}

func GetStock(ctx context.Context, q database.Querier, id uuid.UUID) (*models.StockItem, error) {
	return getStockWhere(ctx, q, "id = $1", id)
}

func GetStockByItemID(ctx context.Context, q database.Querier, itemID string) (*models.StockItem, error) {
	return getStockWhere(ctx, q, "item_id = $1", itemID)
}

func getStockWhere(ctx context.Context, q database.Querier, where string, arg any) (*models.StockItem, error) {
	item := &models.StockItem{}

	query := `SELECT ` + stockColumns + ` FROM stock_items WHERE ` + where

	if err := scanStock(q.QueryRowContext(ctx, query, arg), item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStockNotFound
		}
		return nil, fmt.Errorf("get stock item: %w", err)
	}

	return item, nil
}

// ListStock returns matching items newest first. A non-empty filter.Query is
// matched case-insensitively as a substring of name or category.
func ListStock(ctx context.Context, q database.Querier, filter models.StockFilter) ([]models.StockItem, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(name ILIKE $%d ESCAPE '\' OR category ILIKE $%d ESCAPE '\')`, n, n))
	}

	query := `SELECT ` + stockColumns + ` FROM stock_items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	items := []models.StockItem{}
	for rows.Next() {
		var item models.StockItem
		if err := scanStock(rows, &item); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// UpdateStock applies patch to the item. When expectedVersion is set the
// update only happens if the stored version still matches.
func UpdateStock(ctx context.Context, q database.Querier, id uuid.UUID, patch models.StockPatch, expectedVersion *int) (*models.StockItem, error) {
	item := &models.StockItem{}

	query := `
		UPDATE stock_items
		SET name = COALESCE($2, name),
		    quantity = COALESCE($3, quantity),
		    price = COALESCE($4, price),
		    category = COALESCE($5, category),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND ($6::int IS NULL OR version = $6::int)
		RETURNING ` + stockColumns

	err := scanStock(q.QueryRowContext(ctx, query,
		id, patch.Name, patch.Quantity, patch.Price, patch.Category, expectedVersion,
	), item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if expectedVersion == nil {
				return nil, database.ErrStockNotFound
			}
			if _, getErr := GetStock(ctx, q, id); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update stock item: %w", err)
	}

	return item, nil
}

// DeleteStockItem deletes the row and returns its owner.
func DeleteStockItem(ctx context.Context, q database.Querier, id uuid.UUID) (int64, error) {
	var ownerID int64
	err := q.QueryRowContext(ctx,
		`DELETE FROM stock_items WHERE id = $1 RETURNING owner_id`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrStockNotFound
		}
		return 0, fmt.Errorf("delete stock item: %w", err)
	}
	return ownerID, nil
}
