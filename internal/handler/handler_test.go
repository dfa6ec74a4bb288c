package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-feed/internal/catalog"
	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/runner"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID      map[string]*product.Product
	listErr   error
	deleteErr error
	patched   product.Patch
}

func (m *mockProductRepo) Insert(context.Context, ...product.Product) error { return nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []product.Product
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) ListUnenriched(context.Context, int) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) ApplyEnrichment(context.Context, string, string, string) error {
	return nil
}

func (m *mockProductRepo) Update(_ context.Context, id string, patch product.Patch) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	m.patched = patch
	patch.Apply(p)
	return p, nil
}

func (m *mockProductRepo) SoftDelete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	if !p.Available {
		return product.ErrDeleteGuarded
	}
	delete(m.byID, id)
	return nil
}

type mockRunner struct {
	calls  int
	err    error
	ctxErr error
	ctx    context.Context
}

func (m *mockRunner) Run(ctx context.Context) (runner.Report, error) {
	m.calls++
	m.ctx = ctx
	m.ctxErr = ctx.Err()
	return runner.Report{Ingest: catalog.Stats{Persisted: 3}}, m.err
}

// --- Helpers ---

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(repo *mockProductRepo, r *mockRunner) http.Handler {
	mux := http.NewServeMux()
	NewHandler(repo, r).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func seeded() *mockProductRepo {
	return &mockProductRepo{byID: map[string]*product.Product{
		"doc-1": {ID: "doc-1", Name: "Gauze", Available: true},
		"doc-2": {ID: "doc-2", Name: "Syringe", Available: false},
	}}
}

// --- Tests ---

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		success bool
		message string
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			success: true,
			message: "Products inserted successfully",
		},
		{
			name:    "in progress",
			err:     runner.ErrRunInProgress,
			status:  http.StatusConflict,
			message: "Import already in progress",
		},
		{
			name:    "failure",
			err:     errors.Wrap(errors.New("connection refused"), "ingest"),
			status:  http.StatusInternalServerError,
			message: "Error inserting products",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{err: tt.err}
			code, env := do(t, newTestServer(seeded(), r), http.MethodPost, PathPrefix, "")

			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.success, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.Equal(t, 1, r.calls)
		})
	}
}

type ctxKey struct{}

func TestTriggerRun_OutlivesClient(t *testing.T) {
	r := &mockRunner{}
	h := newTestServer(seeded(), r)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))
	cancel()
	req := httptest.NewRequest(http.MethodPost, PathPrefix, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, r.calls)
	assert.NoError(t, r.ctxErr)
	assert.Equal(t, "req-1", r.ctx.Value(ctxKey{}))
}

func TestListProducts(t *testing.T) {
	code, env := do(t, newTestServer(seeded(), &mockRunner{}), http.MethodGet, PathPrefix, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var products []product.Product
	require.NoError(t, json.Unmarshal(env.Data, &products))
	assert.Len(t, products, 2)
}

func TestListProducts_Empty(t *testing.T) {
	repo := &mockProductRepo{byID: map[string]*product.Product{}}
	code, env := do(t, newTestServer(repo, &mockRunner{}), http.MethodGet, PathPrefix, "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestListProducts_StoreError(t *testing.T) {
	repo := &mockProductRepo{listErr: errors.New("connection reset")}
	code, env := do(t, newTestServer(repo, &mockRunner{}), http.MethodGet, PathPrefix, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Error retrieving products", env.Message)
	assert.NotContains(t, env.Message, "connection reset")
}

func TestGetProduct(t *testing.T) {
	h := newTestServer(seeded(), &mockRunner{})

	code, env := do(t, h, http.MethodGet, PathPrefix+"/doc-1", "")
	require.Equal(t, http.StatusOK, code)
	var p product.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Gauze", p.Name)

	code, env = do(t, h, http.MethodGet, PathPrefix+"/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Product not found", env.Message)
}

func TestUpdateProduct(t *testing.T) {
	repo := seeded()
	h := newTestServer(repo, &mockRunner{})

	code, env := do(t, h, http.MethodPatch, PathPrefix+"/doc-1", `{"name":"Sterile Gauze","unknown":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Product with doc-1 was updated", env.Message)
	assert.Equal(t, "Sterile Gauze", repo.byID["doc-1"].Name)
	assert.Nil(t, repo.patched.Description)
}

func TestUpdateProduct_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "malformed body", path: "/doc-1", body: `{"name":`, status: http.StatusBadRequest},
		{name: "empty patch", path: "/doc-1", body: `{}`, status: http.StatusBadRequest},
		{name: "missing product", path: "/missing", body: `{"name":"x"}`, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, newTestServer(seeded(), &mockRunner{}), http.MethodPatch, PathPrefix+tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
		})
	}
}

func TestDeleteProduct(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		repoErr error
		status  int
		message string
	}{
		{name: "available", id: "doc-1", status: http.StatusOK, message: "Product with doc-1 is deleted"},
		{name: "guarded", id: "doc-2", status: http.StatusBadRequest, message: "Cannot delete product with existing orders"},
		{name: "missing", id: "missing", status: http.StatusNotFound, message: "Product not found"},
		{name: "store error", id: "doc-1", repoErr: errors.New("deadlock"), status: http.StatusInternalServerError, message: "Error deleting product"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := seeded()
			repo.deleteErr = tt.repoErr
			code, env := do(t, newTestServer(repo, &mockRunner{}), http.MethodDelete, PathPrefix+"/"+tt.id, "")
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}
