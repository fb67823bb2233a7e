package products

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pipeline"
	"douyin-image-miner/internal/pkg/render"
	"douyin-image-miner/internal/router"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

type Recorder interface {
	Record(ctx context.Context, in ledger.RecordInput) error
}

// ResolveHandler answers which product a share link points at without
// downloading any image.
type ResolveHandler struct {
	runner   Runner
	recorder Recorder
	logger   *zap.SugaredLogger
}

type NewResolveHandlerParams struct {
	fx.In

	Pipeline *pipeline.Pipeline
	Store    *ledger.Store `optional:"true"`
	Logger   *zap.SugaredLogger
}

func NewResolveHandler(p NewResolveHandlerParams) *ResolveHandler {
	h := &ResolveHandler{runner: p.Pipeline, logger: p.Logger}
	if p.Store != nil {
		h.recorder = p.Store
	}
	return h
}

func (h *ResolveHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/products/resolve", h.Handle)
}

type resolveRequest struct {
	ShareText string `json:"share_text"`
}

type resolveResponse struct {
	RunID        string `json:"run_id"`
	CanonicalURL string `json:"canonical_url"`
	ProductID    string `json:"product_id"`
	Strategy     string `json:"strategy"`
}

type resolveError struct {
	Error       string `json:"error"`
	Remediation string `json:"remediation,omitempty"`
}

func (h *ResolveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.ShareText) == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing share_text")
		return
	}

	report, err := h.runner.Run(r.Context(), pipeline.Request{ShareText: req.ShareText, DryRun: true})
	if h.recorder != nil {
		if rerr := h.recorder.Record(r.Context(), ledger.RecordInput{Report: report, RunErr: err}); rerr != nil {
			h.logger.Warnw("resolve_record_failed", "run_id", report.RunID, "err", rerr)
		}
	}

	var nerr *douyin.NetworkError
	switch {
	case err == nil:
	case errors.Is(err, douyin.ErrNoURLFound):
		render.ChiErr(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, douyin.ErrProductNotResolved):
		render.ChiJSON(w, http.StatusUnprocessableEntity, resolveError{Error: err.Error(), Remediation: douyin.Remediation})
		return
	case errors.As(err, &nerr):
		render.ChiErr(w, http.StatusBadGateway, err.Error())
		return
	default:
		h.logger.Errorw("resolve_failed", "run_id", report.RunID, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "resolve failed")
		return
	}

	render.ChiJSON(w, http.StatusOK, resolveResponse{
		RunID:        report.RunID,
		CanonicalURL: report.Product.CanonicalURL,
		ProductID:    strconv.FormatUint(report.Product.ProductID, 10),
		Strategy:     report.Strategy,
	})
}

var _ router.Handler = (*ResolveHandler)(nil)
