// Package handler serves the product HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/runner"
)

// PathPrefix is the mount point of the product routes.
const PathPrefix = "/api/v1/product"

const maxBodyBytes = 1 << 20

// Runner executes an ingestion and enrichment run.
type Runner interface {
	Run(ctx context.Context) (runner.Report, error)
}

// Handler implements the product endpoints.
type Handler struct {
	products product.Repository
	runner   Runner
}

// NewHandler constructs a Handler.
func NewHandler(products product.Repository, r Runner) *Handler {
	return &Handler{products: products, runner: r}
}

type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{http.MethodPost, PathPrefix, h.TriggerRun},
		{http.MethodGet, PathPrefix, h.ListProducts},
		{http.MethodGet, PathPrefix + "/{id}", h.GetProduct},
		{http.MethodPatch, PathPrefix + "/{id}", h.UpdateProduct},
		{http.MethodDelete, PathPrefix + "/{id}", h.DeleteProduct},
	}
}

// Register mounts the routes described in api/openapi.yaml on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, rt := range h.routes() {
		mux.HandleFunc(rt.method+" "+rt.path, rt.handler)
	}
}

// TriggerRun ingests the configured feed and enriches one batch. The run
// keeps the request's logger and values but outlives a disconnected client.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "Import already in progress")
			return
		}
		h.fail(r, err, "Error inserting products")
		writeError(w, http.StatusInternalServerError, "Error inserting products")
		return
	}
	zctx.From(r.Context()).Info("Triggered run complete",
		zap.Int("persisted", report.Ingest.Persisted),
		zap.Int("enriched", report.Enrich.Enriched),
	)
	writeMessage(w, "Products inserted successfully")
}

// ListProducts returns every live product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(r, err, "Error retrieving products")
		writeError(w, http.StatusInternalServerError, "Error retrieving products")
		return
	}
	if products == nil {
		products = []product.Product{}
	}
	writeData(w, products)
}

// GetProduct returns one product by document id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, err, "Error getting product")
		return
	}
	writeData(w, p)
}

// UpdateProduct applies a partial update.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch product.Patch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	p, err := h.products.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.writeStoreError(w, r, err, "Error updating product")
		return
	}
	writeMessage(w, "Product with "+p.ID+" was updated")
}

// DeleteProduct soft-deletes an available product.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.products.SoftDelete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "Error deleting product")
		return
	}
	writeMessage(w, "Product with "+id+" is deleted")
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, product.ErrDeleteGuarded):
		writeError(w, http.StatusBadRequest, "Cannot delete product with existing orders")
	default:
		h.fail(r, err, msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handler) fail(r *http.Request, err error, msg string) {
	zctx.From(r.Context()).Error(msg,
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
}
