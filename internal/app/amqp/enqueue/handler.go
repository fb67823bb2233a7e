package enqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/app/amqp/imageworker"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/pkg/amqpclient"
	"douyin-image-miner/internal/pkg/render"
	"douyin-image-miner/internal/router"

	"github.com/go-chi/chi/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type publishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

type Handler struct {
	cfg     *config.Config
	channel *amqp.Channel
	logger  *zap.SugaredLogger

	publish publishFunc
}

type NewHandlerParams struct {
	fx.In

	Cfg     *config.Config
	Channel *amqp.Channel `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	var publishFn publishFunc
	if p.Channel != nil {
		publishFn = p.Channel.PublishWithContext
	}

	return &Handler{
		cfg:     p.Cfg,
		channel: p.Channel,
		logger:  p.Logger,
		publish: publishFn,
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/products/enqueue", h.Handle)
}

type enqueueRequest struct {
	ShareText string `json:"share_text"`
	OutDir    string `json:"out_dir,omitempty"`
}

type enqueueResponse struct {
	OK           bool   `json:"ok"`
	EventID      string `json:"event_id"`
	CanonicalURL string `json:"canonical_url"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.ShareText) == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing share_text")
		return
	}
	if req.OutDir != "" && !filepath.IsLocal(req.OutDir) {
		render.ChiErr(w, http.StatusBadRequest, "out_dir must be a relative path")
		return
	}

	// Reject text without a Douyin link before it reaches the queue.
	canonical, err := douyin.Normalize(req.ShareText)
	if errors.Is(err, douyin.ErrNoURLFound) {
		render.ChiErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid share_text")
		return
	}

	if h.cfg.RabbitMQ.URL == "" || h.publish == nil {
		render.ChiErr(w, http.StatusServiceUnavailable, "rabbitmq disabled")
		return
	}

	topo := amqpclient.TopologyFromConfig(h.cfg.RabbitMQ)
	now := time.Now().UTC()
	eventID := eventIDFor(canonical, req.OutDir)

	env := imageworker.ProductRequestedEnvelope{
		EventName: imageworker.EventName,
		EventID:   eventID,
		TS:        now,
		Data: imageworker.ProductRequestedEventData{
			ShareText: req.ShareText,
			OutDir:    req.OutDir,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		h.logger.Errorw("enqueue_marshal_failed", "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if h.channel != nil && h.cfg.RabbitMQ.DeclareTopology {
		if err := h.channel.ExchangeDeclare(topo.Exchange, "topic", true, false, false, false, nil); err != nil {
			h.logger.Errorw("enqueue_exchange_declare_failed", "exchange", topo.Exchange, "err", err)
			render.ChiErr(w, http.StatusBadGateway, "rabbitmq exchange declare failed: "+topo.Exchange)
			return
		}
	}

	if err := h.publish(r.Context(), topo.Exchange, topo.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    eventID,
		Body:         body,
	}); err != nil {
		h.logger.Errorw("enqueue_publish_failed",
			"exchange", topo.Exchange,
			"routing_key", topo.RoutingKey,
			"event_id", eventID,
			"url", canonical,
			"err", err,
		)
		render.ChiErr(w, http.StatusBadGateway, "failed to publish message")
		return
	}

	h.logger.Infow("enqueue_published", "exchange", topo.Exchange, "routing_key", topo.RoutingKey, "event_id", eventID, "url", canonical)
	render.ChiJSON(w, http.StatusAccepted, enqueueResponse{OK: true, EventID: eventID, CanonicalURL: canonical})
}

// eventIDFor is deterministic over the canonical link and the cleaned out_dir,
// where empty and "." both mean OUTPUT_DIR. Re-submitting a request overwrites
// its ledger row; the same product sent to another directory gets its own run.
func eventIDFor(canonical, outDir string) string {
	dir := filepath.ToSlash(filepath.Clean(outDir))
	sum := sha256.Sum256([]byte(canonical + "\x00" + dir))
	return "reqsha256:" + hex.EncodeToString(sum[:])
}

var _ router.Handler = (*Handler)(nil)
