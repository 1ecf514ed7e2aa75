// Package memory is an in-process implementation of the stock and user
// store. Batches are staged and only published once every step succeeded,
// which gives the same all-or-nothing visibility as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/models"
	"github.com/safar/qr-stock/internal/store"
)

// Store keeps items and users in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]models.StockItem
	byItemID map[string]uuid.UUID
	users    map[int64]models.User
	byEmail  map[string]int64
	nextUser int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		items:    make(map[uuid.UUID]models.StockItem),
		byItemID: make(map[string]uuid.UUID),
		users:    make(map[int64]models.User),
		byEmail:  make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBatch holds the write lock for the whole batch so no reader can
// observe a partially annotated set.
func (s *Store) CreateBatch(ctx context.Context, ownerID int64, items []models.StockItem, annotate store.AnnotateFunc) ([]models.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerID]
	if !ok {
		return nil, database.ErrUserNotFound
	}

	now := s.now()
	batch := make([]models.StockItem, len(items))
	staged := make(map[string]bool, len(items))
	for i, item := range items {
		if _, taken := s.byItemID[item.ItemID]; taken || staged[item.ItemID] {
			return nil, fmt.Errorf("%w: item_id %s", database.ErrDuplicateStock, item.ItemID)
		}
		staged[item.ItemID] = true

		if item.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("generate stock id: %w", err)
			}
			item.ID = id
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = item.CreatedAt
		item.OwnerID = ownerID
		item.Version = 1
		item.QRCode = nil
		batch[i] = item
	}

	if annotate != nil {
		if err := annotate(ctx, batch); err != nil {
			return nil, fmt.Errorf("annotate batch: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, item := range batch {
		s.items[item.ID] = item
		s.byItemID[item.ItemID] = item.ID
		owner.StockIDs = append(owner.StockIDs, item.ID)
	}
	owner.UpdatedAt = now
	s.users[ownerID] = owner

	out := make([]models.StockItem, len(batch))
	copy(out, batch)
	return out, nil
}

func (s *Store) GetStock(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrStockNotFound
	}
	return &item, nil
}

func (s *Store) GetStockByItemID(ctx context.Context, itemID string) (*models.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byItemID[itemID]
	s.mu.RUnlock()
	if !ok {
		return nil, database.ErrStockNotFound
	}
	return s.GetStock(ctx, id)
}

func (s *Store) ListStock(ctx context.Context, filter models.StockFilter) ([]models.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(filter.Query)
	items := []models.StockItem{}
	for _, item := range s.items {
		if filter.OwnerID != nil && item.OwnerID != *filter.OwnerID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Name), query) &&
			!strings.Contains(strings.ToLower(item.Category), query) {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
	return items, nil
}

func (s *Store) UpdateStock(ctx context.Context, id uuid.UUID, patch models.StockPatch, expectedVersion *int) (*models.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrStockNotFound
	}
	if expectedVersion != nil && *expectedVersion != item.Version {
		return nil, database.ErrOptimisticLockFailed
	}

	item = patch.Apply(item)
	item.Version++
	item.UpdatedAt = s.now()
	s.items[id] = item
	return &item, nil
}

func (s *Store) DeleteStock(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return database.ErrStockNotFound
	}
	delete(s.items, id)
	delete(s.byItemID, item.ItemID)

	if owner, ok := s.users[item.OwnerID]; ok {
		kept := owner.StockIDs[:0:0]
		for _, sid := range owner.StockIDs {
			if sid != id {
				kept = append(kept, sid)
			}
		}
		owner.StockIDs = kept
		owner.UpdatedAt = s.now()
		s.users[item.OwnerID] = owner
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return database.ErrEmailTaken
	}

	s.nextUser++
	now := s.now()
	user.ID = s.nextUser
	user.StockIDs = []uuid.UUID{}
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	user.StockIDs = append([]uuid.UUID(nil), user.StockIDs...)
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}
