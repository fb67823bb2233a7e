package imageworker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/ledger"
	"douyin-image-miner/internal/pipeline"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAck struct {
	mu       sync.Mutex
	acked    int
	rejected int
	requeue  bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected++
	a.requeue = requeue
	return nil
}

type handlerFunc func(ctx context.Context, msg ProductRequestedEnvelope) error

func (f handlerFunc) Handle(ctx context.Context, msg ProductRequestedEnvelope) error { return f(ctx, msg) }

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(NewConsumerParams{
		Config:  &config.Config{},
		Handler: h,
		Logger:  zap.NewNop().Sugar(),
	})
}

func TestConsumer_HandleDelivery(t *testing.T) {
	t.Parallel()

	var got ProductRequestedEnvelope
	ok := handlerFunc(func(_ context.Context, msg ProductRequestedEnvelope) error {
		got = msg
		return nil
	})
	failing := handlerFunc(func(context.Context, ProductRequestedEnvelope) error { return errors.New("boom") })

	cases := []struct {
		name     string
		handler  Handler
		delivery amqp.Delivery
		acked    int
		rejected int
	}{
		{
			name:     "acks handled message and falls back to message id",
			handler:  ok,
			delivery: amqp.Delivery{MessageId: "evt-1", Body: []byte(`{"event_name":"douyin.product.requested.v1","data":{"share_text":"https://v.douyin.com/ABC/"}}`)},
			acked:    1,
		},
		{
			name:     "rejects invalid json",
			handler:  ok,
			delivery: amqp.Delivery{MessageId: "evt-2", Body: []byte(`{`)},
			rejected: 1,
		},
		{
			name:     "rejects message without any event id",
			handler:  ok,
			delivery: amqp.Delivery{Body: []byte(`{"data":{"share_text":"x"}}`)},
			rejected: 1,
		},
		{
			name:     "rejects when the handler fails",
			handler:  failing,
			delivery: amqp.Delivery{MessageId: "evt-3", Body: []byte(`{"data":{"share_text":"x"}}`)},
			rejected: 1,
		},
		{
			name:     "rejects when no handler is wired",
			handler:  nil,
			delivery: amqp.Delivery{MessageId: "evt-4", Body: []byte(`{"data":{"share_text":"x"}}`)},
			rejected: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAck{}
			tc.delivery.Acknowledger = ack

			newTestConsumer(tc.handler).handleDelivery(context.Background(), tc.delivery)

			require.Equal(t, tc.acked, ack.acked)
			require.Equal(t, tc.rejected, ack.rejected)
			require.False(t, ack.requeue)
		})
	}
	require.Equal(t, "evt-1", got.EventID)
	require.Equal(t, "https://v.douyin.com/ABC/", got.Data.ShareText)
}

func TestConsumer_StartDisabledWithoutRabbitMQ(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(nil)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

type fakeRunner struct {
	report pipeline.Report
	err    error
	got    pipeline.Request
}

func (r *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Report, error) {
	r.got = req
	rep := r.report
	rep.RunID = req.RunID
	return rep, r.err
}

type fakeRecorder struct {
	records []ledger.RecordInput
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, in ledger.RecordInput) error {
	r.records = append(r.records, in)
	return r.err
}

func newTestHandler(run *fakeRunner, rec *fakeRecorder) *ProductHandler {
	cfg := &config.Config{}
	cfg.Pipeline.OutputDir = "output"
	return &ProductHandler{cfg: cfg, runner: run, recorder: rec, logger: zap.NewNop().Sugar()}
}

func envelope(shareText, outDir string) ProductRequestedEnvelope {
	return ProductRequestedEnvelope{
		EventName: EventName,
		EventID:   "evt-1",
		Data:      ProductRequestedEventData{ShareText: shareText, OutDir: outDir},
	}
}

func TestProductHandler_RunsAndRecords(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{report: pipeline.Report{Product: douyin.ResolvedProduct{ProductID: 42, IsProductPage: true}}}
	rec := &fakeRecorder{}

	require.NoError(t, newTestHandler(run, rec).Handle(context.Background(), envelope("https://v.douyin.com/ABC/", "batch-7")))

	require.Equal(t, "evt-1", run.got.RunID)
	require.Equal(t, filepath.Join("output", "batch-7"), run.got.OutputDir)
	require.Len(t, rec.records, 1)
	require.Equal(t, "evt-1", rec.records[0].Report.RunID)
	require.NoError(t, rec.records[0].RunErr)
}

func TestProductHandler_PipelineFailureIsRecordedNotReturned(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{err: douyin.ErrProductNotResolved}
	rec := &fakeRecorder{}

	require.NoError(t, newTestHandler(run, rec).Handle(context.Background(), envelope("https://v.douyin.com/ABC/", "")))
	require.Equal(t, "output", run.got.OutputDir)
	require.Len(t, rec.records, 1)
	require.ErrorIs(t, rec.records[0].RunErr, douyin.ErrProductNotResolved)
}

func TestProductHandler_Errors(t *testing.T) {
	t.Parallel()

	t.Run("record failure dead-letters", func(t *testing.T) {
		rec := &fakeRecorder{err: errors.New("db down")}
		require.Error(t, newTestHandler(&fakeRunner{}, rec).Handle(context.Background(), envelope("https://v.douyin.com/ABC/", "")))
	})

	t.Run("cancelled run is not recorded", func(t *testing.T) {
		rec := &fakeRecorder{}
		err := newTestHandler(&fakeRunner{err: context.Canceled}, rec).Handle(context.Background(), envelope("https://v.douyin.com/ABC/", ""))
		require.ErrorIs(t, err, context.Canceled)
		require.Empty(t, rec.records)
	})

	invalid := map[string]ProductRequestedEnvelope{
		"missing share text": envelope("  ", ""),
		"escaping out dir":   envelope("https://v.douyin.com/ABC/", "../etc"),
		"absolute out dir":   envelope("https://v.douyin.com/ABC/", "/tmp/x"),
		"wrong event":        {EventName: "douyin.product.deleted.v1", EventID: "e", Data: ProductRequestedEventData{ShareText: "x"}},
		"missing event id":   {EventName: EventName, Data: ProductRequestedEventData{ShareText: "x"}},
	}
	for name, msg := range invalid {
		t.Run(name, func(t *testing.T) {
			run := &fakeRunner{}
			require.Error(t, newTestHandler(run, &fakeRecorder{}).Handle(context.Background(), msg))
			require.Empty(t, run.got.ShareText)
		})
	}
}
