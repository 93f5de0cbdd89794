package ddns

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// MinInterval is the shortest interval accepted by RunDaemon.
const MinInterval = 1 * time.Minute

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(context.Context) (Outcome, error)
}

// RunDaemon runs a pass immediately and then once per interval until ctx is done.
// It returns ctx.Err().
//
// Passes are independent; a failed pass is retried on the next tick.
// The Reconciler is expected to log its own failures.
// A nil logger uses the logger configured in the Client, if r is one.
func RunDaemon(ctx context.Context, r Reconciler, interval time.Duration, logger logrus.FieldLogger) error {
	if interval < MinInterval {
		interval = MinInterval
	}
	if logger == nil {
		if c, ok := r.(*Client); ok && c.logger != nil {
			logger = c.logger
		} else {
			logger = discard
		}
	}
	logger.Infof("checking every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		outcome, err := r.Reconcile(ctx)
		if err != nil {
			logger.WithField("outcome", outcome.String()).Debugf("ddns.RunDaemon: pass failed, retrying in %s", interval)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
