// Package catalog owns the stock item lifecycle: batch ingestion with QR
// annotation, scoped reads, search, updates and deletes.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/ingest"
	"github.com/safar/qr-stock/internal/models"
	"github.com/safar/qr-stock/internal/store"
	"go.uber.org/zap"
)

type Repository interface {
	CreateBatch(ctx context.Context, ownerID int64, items []models.StockItem, annotate store.AnnotateFunc) ([]models.StockItem, error)
	GetStock(ctx context.Context, id uuid.UUID) (*models.StockItem, error)
	GetStockByItemID(ctx context.Context, itemID string) (*models.StockItem, error)
	ListStock(ctx context.Context, filter models.StockFilter) ([]models.StockItem, error)
	UpdateStock(ctx context.Context, id uuid.UUID, patch models.StockPatch, expectedVersion *int) (*models.StockItem, error)
	DeleteStock(ctx context.Context, id uuid.UUID) error
}

// Annotator attaches a QR code to every item of a batch.
type Annotator interface {
	AnnotateBatch(ctx context.Context, items []models.StockItem) error
}

// UploadGuard rejects the same file being ingested twice in a short window.
type UploadGuard interface {
	Claim(ctx context.Context, ownerID int64, digest string) (bool, error)
	Release(ctx context.Context, ownerID int64, digest string) error
}

// UpdateRequest changes the mutable fields of an item. With ExpectedVersion
// set the update fails with a conflict if the item changed in the meantime.
type UpdateRequest struct {
	ExpectedVersion *int
	Fields          models.StockPatch
}

type Service struct {
	repo    Repository
	qr      Annotator
	guard   UploadGuard
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithUploadGuard(g UploadGuard) Option {
	return func(s *Service) { s.guard = g }
}

func New(repo Repository, qr Annotator, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		qr:      qr,
		logger:  zap.NewNop(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func authenticated(who models.Identity) error {
	if who.UserID <= 0 || !who.Role.Can(models.CapReadOwn) {
		return apperr.New(apperr.KindUnauthorized, "unauthorized")
	}
	return nil
}

// Ingest parses an uploaded spreadsheet and inserts its rows as one batch.
func (s *Service) Ingest(ctx context.Context, who models.Identity, data []byte, filename string) (items []models.StockItem, err error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	records, err := ingest.Parse(data, filename)
	if err != nil {
		return nil, err
	}

	if s.guard != nil {
		sum := sha256.Sum256(data)
		digest := hex.EncodeToString(sum[:])

		claimed, claimErr := s.guard.Claim(ctx, who.UserID, digest)
		switch {
		case claimErr != nil:
			s.logger.Warn("upload guard unavailable", zap.Int64("owner_id", who.UserID), zap.Error(claimErr))
		case !claimed:
			return nil, apperr.New(apperr.KindConflict, "this file was already uploaded")
		default:
			defer func() {
				if err == nil {
					return
				}
				if relErr := s.guard.Release(context.WithoutCancel(ctx), who.UserID, digest); relErr != nil {
					s.logger.Warn("release upload claim", zap.Int64("owner_id", who.UserID), zap.Error(relErr))
				}
			}()
		}
	}

	return s.InsertBatch(ctx, who, records)
}

// InsertBatch validates records, derives identifiers and persists the batch
// with QR codes attached. Either every record becomes a visible, annotated
// item owned by who, or nothing changes.
func (s *Service) InsertBatch(ctx context.Context, who models.Identity, records []ingest.Record) ([]models.StockItem, error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	start := s.now()
	items, err := buildItems(records, start.UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	created, err := s.repo.CreateBatch(ctx, who.UserID, items, func(ctx context.Context, batch []models.StockItem) error {
		if err := s.qr.AnnotateBatch(ctx, batch); err != nil {
			return apperr.Wrap(apperr.KindUnavailable, err, "qr code generation failed")
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("stock batch rejected",
			zap.Int64("owner_id", who.UserID),
			zap.Int("records", len(records)),
			zap.Error(err))
		return nil, translate(err)
	}

	s.logger.Info("stock batch ingested",
		zap.Int64("owner_id", who.UserID),
		zap.Int("items", len(created)),
		zap.Duration("elapsed", s.now().Sub(start)))

	return created, nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*models.StockItem, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetStock(ctx, id)
	}
	if IsIdentifier(ref) {
		return s.repo.GetStockByItemID(ctx, ref)
	}
	return nil, apperr.New(apperr.KindInvalidArg, "invalid item id")
}

// Get returns the item referenced by its id or item identifier. Items the
// caller may not see are reported as not found.
func (s *Service) Get(ctx context.Context, who models.Identity, ref string) (*models.StockItem, error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, translate(err)
	}
	if !who.CanSee(item.OwnerID) {
		return nil, apperr.NotFound("item not found")
	}
	return item, nil
}

// List returns every item visible to who, newest first.
func (s *Service) List(ctx context.Context, who models.Identity) ([]models.StockItem, error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := s.repo.ListStock(ctx, who.Scope())
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// Search returns visible items whose name or category contains query,
// ignoring case.
func (s *Service) Search(ctx context.Context, who models.Identity, query string) ([]models.StockItem, error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := who.Scope()
	filter.Query = query

	items, err := s.repo.ListStock(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// Update applies req to the referenced item.
func (s *Service) Update(ctx context.Context, who models.Identity, ref string, req UpdateRequest) (*models.StockItem, error) {
	if err := authenticated(who); err != nil {
		return nil, err
	}

	patch, err := normalizePatch(req.Fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, translate(err)
	}
	if !who.CanModify(item.OwnerID) {
		return nil, apperr.NotFound("item not found")
	}

	merged := patch.Apply(*item)
	if err := checkQuantity(merged.Quantity); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if merged.Price.IsNegative() {
		return nil, apperr.Validation("price must not be negative")
	}

	updated, err := s.repo.UpdateStock(ctx, item.ID, patch, req.ExpectedVersion)
	if err != nil {
		return nil, translate(err)
	}
	return updated, nil
}

func normalizePatch(p models.StockPatch) (models.StockPatch, error) {
	if p.IsEmpty() {
		return p, apperr.Validation("no updatable fields supplied")
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return p, apperr.Validation("name must not be empty")
		}
		p.Name = &name
	}
	if p.Quantity != nil {
		if err := checkQuantity(*p.Quantity); err != nil {
			return p, apperr.Validation("%v", err)
		}
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		p.Category = &category
	}
	return p, nil
}

// Delete removes the referenced item and its owner back-reference.
func (s *Service) Delete(ctx context.Context, who models.Identity, ref string) error {
	if err := authenticated(who); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := s.lookup(ctx, ref)
	if err != nil {
		return translate(err)
	}
	if !who.CanModify(item.OwnerID) {
		return apperr.NotFound("item not found")
	}

	if err := s.repo.DeleteStock(ctx, item.ID); err != nil {
		return translate(err)
	}

	s.logger.Info("stock item deleted",
		zap.Int64("actor_id", who.UserID),
		zap.String("item_id", item.ItemID))
	return nil
}
