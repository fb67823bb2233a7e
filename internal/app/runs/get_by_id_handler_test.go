package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"douyin-image-miner/db"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()

	conn, err := db.Open(context.Background(), db.Target{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "ledger.db"),
		Dialect: goose.DialectSQLite3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return ledger.New(conn, zap.NewNop().Sugar())
}

func serve(h *GetByIDHandler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoute(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGetByIDHandler_Success(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, store.Record(context.Background(), ledger.RecordInput{Report: pipeline.Report{
		RunID:     "run_1",
		ShareText: "https://v.douyin.com/ABC123/",
		Product:   douyin.ResolvedProduct{CanonicalURL: "https://haohuo.jinritemai.com/ecommerce/trade/detail/index.html?id=7123456789", ProductID: 7123456789, IsProductPage: true},
		Strategy:  "url_index_id_param",
		Outcomes: []pipeline.AssetOutcome{
			{Ordinal: 1, SourceURL: "https://p3.douyinpic.com/1.jpg", Stage: pipeline.StageDone, Path: "output/7123456789_1.png"},
		},
		StartedAt:  now,
		FinishedAt: now,
	}}))

	w := serve(&GetByIDHandler{runs: store, logger: zap.NewNop().Sugar()}, "/v1/runs/run_1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got ledger.RunDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "run_1", got.ID)
	require.Equal(t, "7123456789", got.ProductID)
	require.Equal(t, ledger.StatusSucceeded, got.Status)
	require.Len(t, got.Assets, 1)
	require.Equal(t, "output/7123456789_1.png", got.Assets[0].Path)
}

func TestGetByIDHandler_NotFound(t *testing.T) {
	t.Parallel()

	w := serve(&GetByIDHandler{runs: newTestStore(t), logger: zap.NewNop().Sugar()}, "/v1/runs/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
}

type getterFunc func(ctx context.Context, id string) (ledger.RunDetail, error)

func (f getterFunc) Get(ctx context.Context, id string) (ledger.RunDetail, error) { return f(ctx, id) }

func TestGetByIDHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		code int
	}{
		"disabled": {err: db.ErrLedgerDisabled, code: http.StatusServiceUnavailable},
		"broken":   {err: errors.New("disk I/O error"), code: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := &GetByIDHandler{
				runs:   getterFunc(func(context.Context, string) (ledger.RunDetail, error) { return ledger.RunDetail{}, tc.err }),
				logger: zap.NewNop().Sugar(),
			}
			require.Equal(t, tc.code, serve(h, "/v1/runs/x").Code)
		})
	}
}
