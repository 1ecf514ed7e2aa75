package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/models"
)

const userColumns = `id, name, email, password_hash, role, stock_ids, created_at, updated_at`

func nowUTC() time.Time {
	return time.Now().UTC()
}

func scanUser(row rowScanner, user *models.User) error {
	var stockIDs pq.StringArray
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&stockIDs,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	user.StockIDs = make([]uuid.UUID, 0, len(stockIDs))
	for _, s := range stockIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("parse stock id %q: %w", s, err)
		}
		user.StockIDs = append(user.StockIDs, id)
	}
	return nil
}

func CreateUser(ctx context.Context, q database.Querier, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns

	err := scanUser(q.QueryRowContext(ctx, query, user.Name, user.Email, user.PasswordHash, user.Role), user)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return database.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	return getUserWhere(ctx, q, "id = $1", id)
}

func GetUserByEmail(ctx context.Context, q database.Querier, email string) (*models.User, error) {
	return getUserWhere(ctx, q, "email = $1", email)
}

func getUserWhere(ctx context.Context, q database.Querier, where string, arg any) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	if err := scanUser(q.QueryRowContext(ctx, query, arg), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// AppendUserStocks adds ids to the user's denormalized stock list.
func AppendUserStocks(ctx context.Context, q database.Querier, userID int64, ids []uuid.UUID) error {
	return execUserUpdate(ctx, q,
		`UPDATE users SET stock_ids = stock_ids || $2::uuid[], updated_at = NOW() WHERE id = $1`,
		userID, pq.StringArray(uuidStrings(ids)))
}

// RemoveUserStock drops id from the user's denormalized stock list.
func RemoveUserStock(ctx context.Context, q database.Querier, userID int64, id uuid.UUID) error {
	return execUserUpdate(ctx, q,
		`UPDATE users SET stock_ids = array_remove(stock_ids, $2::uuid), updated_at = NOW() WHERE id = $1`,
		userID, id)
}

func execUserUpdate(ctx context.Context, q database.Querier, query string, userID int64, arg any) error {
	result, err := q.ExecContext(ctx, query, userID, arg)
	if err != nil {
		return fmt.Errorf("update user stock list: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
