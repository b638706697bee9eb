package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/collaborator"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const (
	sweepLockName            = "expiration-sweep"
	NotificationKindExpiring = "subscription_expiring"
)

type SweepReport struct {
	Skipped      bool
	Expired      int
	Failed       int
	Notified     int
	NotifyFailed int
}

// Sweeper deactivates subscriptions whose window has closed and warns
// managers ahead of expiry.
type Sweeper struct {
	store    transactor
	notifier notifier
	locker   jobLocker
	horizons []int
	link     string
	logger   logrus.FieldLogger
	now      clock
}

// NewSweeper builds a sweeper. locker may be nil when a single replica runs jobs.
func NewSweeper(store transactor, notifier notifier, locker jobLocker, horizonDays []int, link string) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		locker:   locker,
		horizons: horizonDays,
		link:     link,
		logger:   factory.NewModuleLogger("sweeper"),
		now:      utcNow,
	}
}

func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx, sweepLockName)
		if err != nil {
			return nil, err
		}
		if !acquired {
			s.logger.Info("sweep_skipped_lock_held")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("sweep_lock_release_failed")
			}
		}()
	}

	now := s.now()
	if err := s.expire(ctx, now, report); err != nil {
		return report, err
	}
	s.warn(ctx, now, report)

	s.logger.WithFields(logrus.Fields{
		"expired":       report.Expired,
		"failed":        report.Failed,
		"notified":      report.Notified,
		"notify_failed": report.NotifyFailed,
	}).Info("sweep_completed")
	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, now time.Time, report *SweepReport) error {
	ids, err := s.store.Stores().Subscriptions.ListExpiredActiveIDs(ctx, now)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := s.ExpireOne(ctx, id, now)
		if err != nil {
			report.Failed++
			metrics.SweepFailures.Inc()
			s.logger.WithError(err).WithField("subscription_id", id).Error("sweep_expire_failed")
			continue
		}
		if expired {
			report.Expired++
			metrics.SweepExpired.Inc()
		}
	}
	return nil
}

// ExpireOne re-reads the subscription under its row lock and expires it only
// if it is still lapsed. A payment reconciled since the listing wins.
func (s *Sweeper) ExpireOne(ctx context.Context, id uint64, now time.Time) (bool, error) {
	expired := false
	err := s.store.Transact(ctx, func(ctx context.Context, st repository.Stores) error {
		expired = false
		subscription, err := st.Subscriptions.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if subscription == nil || !subscription.IsLapsed(now) {
			return nil
		}

		subscription.Status = entity.SubscriptionStatusExpired
		subscription.IsActive = false
		subscription.UpdatedAt = now
		if err := st.Subscriptions.Update(ctx, subscription); err != nil {
			return err
		}
		if err := st.Managers.UpdateSubscriptionMirror(ctx, subscription.ManagerID, &subscription.EndAt, false); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

// warn notifies managers whose subscription ends on the UTC day that is
// exactly h days from today, for each configured horizon h.
func (s *Sweeper) warn(ctx context.Context, now time.Time, report *SweepReport) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, days := range s.horizons {
		from := today.AddDate(0, 0, days)
		items, err := s.store.Stores().Subscriptions.ListActiveEndingBetween(ctx, from, from.AddDate(0, 0, 1))
		if err != nil {
			s.logger.WithError(err).WithField("horizon_days", days).Error("sweep_horizon_list_failed")
			continue
		}

		for _, item := range items {
			if !item.IsCurrent(now) {
				continue
			}
			label := strconv.Itoa(days)
			if err := s.notifier.Notify(ctx, expiryNotification(item, days, s.link)); err != nil {
				report.NotifyFailed++
				metrics.ExpiryNotifications.WithLabelValues(label, "error").Inc()
				s.logger.WithError(err).WithFields(logrus.Fields{
					"manager_id":   item.ManagerID,
					"horizon_days": days,
				}).Warn("expiry_notification_failed")
				continue
			}
			report.Notified++
			metrics.ExpiryNotifications.WithLabelValues(label, "ok").Inc()
		}
	}
}

func expiryNotification(subscription *entity.Subscription, days int, link string) collaborator.Notification {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	priority := collaborator.PriorityNormal
	if days <= 1 {
		priority = collaborator.PriorityHigh
	} else if days > 3 {
		priority = collaborator.PriorityLow
	}
	return collaborator.Notification{
		UserID:   subscription.ManagerID,
		Kind:     NotificationKindExpiring,
		Title:    fmt.Sprintf("Subscription expires in %d %s", days, unit),
		Message:  fmt.Sprintf("Your subscription ends on %s. Renew to keep your team's access.", subscription.EndAt.Format("2 January 2006")),
		Priority: priority,
		Link:     link,
	}
}
