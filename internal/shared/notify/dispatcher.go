package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const retryQueueKey = "plancompras:notify:retry"

// Dispatcher fans committed events out to the Notifier. Failed sends are
// pushed to a redis list and retried by Run; without redis they are logged
// and dropped. Either way the originating transition stays committed.
type Dispatcher struct {
	notifier Notifier
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewDispatcher(notifier Notifier, rdb *redis.Client, logger *zap.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Dispatcher{notifier: notifier, rdb: rdb, logger: logger}
}

// Dispatch sends the event on its own goroutine, after the transition that
// produced it has committed.
func (d *Dispatcher) Dispatch(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := d.notifier.Send(ctx, event); err != nil {
			d.logger.Warn("Notification delivery failed",
				zap.String("template", event.TemplateKey),
				zap.String("plan_id", event.PlanID),
				zap.Error(err),
			)
			d.enqueueRetry(ctx, event)
		}
	}()
}

func (d *Dispatcher) enqueueRetry(ctx context.Context, event Event) {
	if d.rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := d.rdb.LPush(ctx, retryQueueKey, payload).Err(); err != nil {
		d.logger.Error("Failed to enqueue notification retry", zap.Error(err))
	}
}

// Run drains the retry queue until the context is cancelled. Events that
// fail again go back to the end of the queue after a pause.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.rdb == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := d.rdb.BRPop(ctx, 5*time.Second, retryQueueKey).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			d.logger.Error("Notification retry queue read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			d.logger.Error("Discarding malformed retry payload", zap.Error(err))
			continue
		}

		if err := d.notifier.Send(ctx, event); err != nil {
			d.logger.Warn("Notification retry failed",
				zap.String("template", event.TemplateKey),
				zap.String("plan_id", event.PlanID),
				zap.Error(err),
			)
			time.Sleep(10 * time.Second)
			d.enqueueRetry(ctx, event)
		}
	}
}
