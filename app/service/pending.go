package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
)

type RecoveryReport struct {
	Examined  int
	Recovered int
	StillOpen int
	Failed    int
}

// PendingRecovery settles payments whose callback never arrived by querying
// the provider. All state changes go through the Reconciler.
type PendingRecovery struct {
	store      transactor
	reconciler *Reconciler
	grace      time.Duration
	maxAge     time.Duration
	batchSize  int
	logger     logrus.FieldLogger
	now        clock
}

func NewPendingRecovery(store transactor, reconciler *Reconciler, grace, maxAge time.Duration, batchSize int) *PendingRecovery {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &PendingRecovery{
		store:      store,
		reconciler: reconciler,
		grace:      grace,
		maxAge:     maxAge,
		batchSize:  batchSize,
		logger:     factory.NewModuleLogger("pending_recovery"),
		now:        utcNow,
	}
}

func (p *PendingRecovery) Run(ctx context.Context) (*RecoveryReport, error) {
	now := p.now()
	items, err := p.store.Stores().Payments.ListStalePending(ctx, now.Add(-p.maxAge), now.Add(-p.grace), p.batchSize)
	if err != nil {
		return nil, err
	}

	report := &RecoveryReport{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		entry := p.logger.WithFields(logrus.Fields{
			"transaction_id": item.TransactionID,
			"gateway":        item.Gateway,
		})

		provider, err := gateway.ParseProvider(item.Gateway)
		if err != nil {
			report.Failed++
			metrics.PendingRecovered.WithLabelValues("error").Inc()
			entry.WithError(err).Error("pending_recovery_unknown_gateway")
			continue
		}

		result, _, err := p.reconciler.ReconcileByQuery(ctx, provider, item.TransactionID)
		if err != nil {
			report.Failed++
			metrics.PendingRecovered.WithLabelValues("error").Inc()
			entry.WithError(err).Warn("pending_recovery_failed")
			continue
		}
		if result == ReconcileNotFinal {
			report.StillOpen++
			metrics.PendingRecovered.WithLabelValues("open").Inc()
			continue
		}
		report.Recovered++
		metrics.PendingRecovered.WithLabelValues("recovered").Inc()
	}

	p.logger.WithFields(logrus.Fields{
		"examined":   report.Examined,
		"recovered":  report.Recovered,
		"still_open": report.StillOpen,
		"failed":     report.Failed,
	}).Info("pending_recovery_completed")
	return report, nil
}
