package runs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"douyin-image-miner/db"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pkg/render"
	"douyin-image-miner/internal/router"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RunGetter interface {
	Get(ctx context.Context, id string) (ledger.RunDetail, error)
}

type GetByIDHandler struct {
	runs   RunGetter
	logger *zap.SugaredLogger
}

type NewGetByIDHandlerParams struct {
	fx.In

	Store  *ledger.Store
	Logger *zap.SugaredLogger
}

func NewGetByIDHandler(p NewGetByIDHandlerParams) *GetByIDHandler {
	return &GetByIDHandler{runs: p.Store, logger: p.Logger}
}

func (h *GetByIDHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/runs/{id}", h.Handle)
}

func (h *GetByIDHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing id")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrRunNotFound):
		render.ChiErr(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, db.ErrLedgerDisabled):
		render.ChiErr(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	case err != nil:
		h.logger.Errorw("run_get_by_id_failed", "id", id, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	render.ChiJSON(w, http.StatusOK, run)
}

var _ router.Handler = (*GetByIDHandler)(nil)
