package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/catalog"
	"github.com/safar/qr-stock/internal/models"
	"github.com/safar/qr-stock/internal/upload"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who := identityFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)

	f, err := upload.Receive(r, "file", s.cfg.UploadDir, s.cfg.MaxUploadBytes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() {
		if err := f.Cleanup(); err != nil {
			s.logger.Warn("upload cleanup failed", zap.Error(err))
		}
	}()

	items, err := s.catalog.Ingest(ctx, who, f.Data, f.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, messageResponse{
		Message: fmt.Sprintf("%d items uploaded successfully", len(items)),
		Data:    items,
	})
}

func (s *Server) handleListStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := s.catalog.List(ctx, identityFrom(ctx))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	item, err := s.catalog.Get(ctx, identityFrom(ctx), r.URL.Query().Get(":id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, item)
}

type updateStockRequest struct {
	Name     *string          `json:"name"`
	Quantity *int             `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
	Category *string          `json:"category"`
	Version  *int             `json:"version"`
}

func (s *Server) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	item, err := s.catalog.Update(ctx, identityFrom(ctx), r.URL.Query().Get(":id"), catalog.UpdateRequest{
		ExpectedVersion: req.Version,
		Fields: models.StockPatch{
			Name:     req.Name,
			Quantity: req.Quantity,
			Price:    req.Price,
			Category: req.Category,
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, messageResponse{Message: "item updated successfully", Data: item})
}

func (s *Server) handleDeleteStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.catalog.Delete(ctx, identityFrom(ctx), r.URL.Query().Get(":id")); err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, messageResponse{Message: "item deleted successfully"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := s.catalog.Search(ctx, identityFrom(ctx), r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, items)
}
