package worker

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/broker"
	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

const sweepBatchSize = 100

// AutoReleaseWorker periodically releases escrows the buyer never
// confirmed within the configured window. It applies the same confirm
// transition a buyer would, so every invariant of the state machine
// holds; a sweep losing a race to a concurrent confirm or refund just
// observes a conflict and moves on.
type AutoReleaseWorker struct {
	orders       *service.OrderService
	interval     time.Duration
	releaseAfter time.Duration
	logger       *zap.Logger
}

// NewAutoReleaseWorker creates a new auto-release worker
func NewAutoReleaseWorker(orders *service.OrderService, interval, releaseAfter time.Duration) *AutoReleaseWorker {
	return &AutoReleaseWorker{
		orders:       orders,
		interval:     interval,
		releaseAfter: releaseAfter,
		logger:       util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *AutoReleaseWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting auto-release worker",
		zap.Duration("interval", w.interval),
		zap.Duration("release_after", w.releaseAfter))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Auto-release worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *AutoReleaseWorker) sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		util.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-w.releaseAfter)
	ids, err := w.orders.ListAutoReleasable(ctx, cutoff, sweepBatchSize)
	if err != nil {
		w.logger.Error("Failed to scan releasable escrows", zap.Error(err))
		return
	}

	for _, orderID := range ids {
		if _, err := w.orders.AutoRelease(ctx, orderID); err != nil {
			if errors.Is(err, service.ErrConflict) {
				// Lost a race to a concurrent transition; nothing to do.
				continue
			}
			w.logger.Error("Auto-release failed",
				zap.Int64("order_id", orderID),
				zap.Error(err))
			continue
		}
		util.AutoReleasesTotal.Inc()
		w.logger.Info("Escrow auto-released", zap.Int64("order_id", orderID))
	}
}

// DisputeResolver applies a mediation outcome to a disputed order.
// *service.OrderService satisfies it.
type DisputeResolver interface {
	ResolveDispute(ctx context.Context, orderID int64, outcome string) (*service.OrderWithEscrow, error)
}

// DisputeWorker consumes dispute resolution events from the mediation
// service and applies the resulting terminal transition.
type DisputeWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewDisputeWorker creates a new dispute worker
func NewDisputeWorker(consumer *broker.Consumer, resolver DisputeResolver) *DisputeWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()
	eventHandler.OnDisputeResolved(resolveDispute(resolver, logger))

	return &DisputeWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// resolveDispute wraps the service call with the commit policy. Already
// settled orders, unknown orders and malformed outcomes are all final:
// retrying the message can never change the result, so it is committed
// rather than redelivered after every restart. Only transient failures
// propagate and hold the offset.
func resolveDispute(resolver DisputeResolver, logger *zap.Logger) func(context.Context, *models.DisputeResolvedEvent) error {
	return func(ctx context.Context, event *models.DisputeResolvedEvent) error {
		_, err := resolver.ResolveDispute(ctx, event.OrderID, event.Outcome)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrNotFound):
			logger.Warn("Dispute resolution not applicable",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			return nil
		case errors.Is(err, service.ErrValidation):
			logger.Error("Dropping malformed dispute resolution",
				zap.Int64("order_id", event.OrderID),
				zap.String("outcome", event.Outcome),
				zap.Error(err))
			return nil
		default:
			return err
		}
	}
}

// Start starts the worker
func (w *DisputeWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting dispute worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DisputeWorker) Stop() error {
	w.logger.Info("Stopping dispute worker")
	return w.consumer.Close()
}
