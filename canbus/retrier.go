package canbus

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"time"
)

var (
	retrySleep    = time.Second
	maxRetrySleep = 30 * time.Second
)

// Retryable is a connection that Retry keeps alive. The CAN link and the
// MQTT forwarder both run under it.
type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

// Retry opens r and keeps it running, closing and reopening it whenever
// Open or Start fails, until ctx is done. The pause between attempts doubles
// while Open keeps failing, up to maxRetrySleep, and resets once it succeeds.
func Retry(ctx context.Context, r Retryable) error {
	errStarting := errors.New("starting")
	err := errStarting
	sleep := retrySleep
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			if err != errStarting {
				log.WithError(err).WithField("retry_in", sleep).Errorf("%s: reconnecting due to error", r.Name())
				if err = r.Close(); err != nil {
					log.WithError(err).Warnf("%s: unable to close", r.Name())
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sleep):
				}
				sleep = nextRetrySleep(sleep)
			}
			err = r.Open()
			if err != nil {
				continue
			}
			sleep = retrySleep
		}
		err = r.Start(ctx)
	}
}

func nextRetrySleep(d time.Duration) time.Duration {
	d *= 2
	if d > maxRetrySleep {
		return maxRetrySleep
	}
	return d
}
