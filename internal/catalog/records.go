package catalog

import (
	"math"
	"strings"
	"time"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/ingest"
	"github.com/safar/qr-stock/internal/models"
	"github.com/shopspring/decimal"
)

// buildItems validates every record and derives the items of one batch. The
// first invalid record rejects the whole batch.
func buildItems(records []ingest.Record, createdAt time.Time) ([]models.StockItem, error) {
	if len(records) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}

	items := make([]models.StockItem, 0, len(records))
	for i, rec := range records {
		row := rec.Line
		if row <= 0 {
			row = i + 2
		}

		name := strings.TrimSpace(rec.Get("name"))
		if name == "" {
			return nil, apperr.Validation("row %d: name is required", row)
		}

		quantity, err := parseQuantity(rec.Get("quantity"))
		if err != nil {
			return nil, apperr.Validation("row %d: %v", row, err)
		}

		price, err := parsePrice(rec.Get("price"))
		if err != nil {
			return nil, apperr.Validation("row %d: %v", row, err)
		}

		items = append(items, models.StockItem{
			ItemID:    NewIdentifier(name, createdAt),
			Name:      name,
			Quantity:  quantity,
			Price:     price,
			Category:  strings.TrimSpace(rec.Get("category")),
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		})
	}
	return items, nil
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

func parseQuantity(raw string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fieldError("quantity must be a number")
	}
	if !d.IsInteger() {
		return 0, fieldError("quantity must be a whole number")
	}
	if d.IsNegative() {
		return 0, fieldError("quantity must not be negative")
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, fieldError("quantity is too large")
	}
	return int(d.IntPart()), nil
}

// checkQuantity enforces the range the stock_items.quantity column holds.
func checkQuantity(q int) error {
	if q < 0 {
		return fieldError("quantity must not be negative")
	}
	if q > math.MaxInt32 {
		return fieldError("quantity is too large")
	}
	return nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fieldError("price must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, fieldError("price must not be negative")
	}
	return d, nil
}
