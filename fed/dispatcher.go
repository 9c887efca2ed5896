package fed

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tailfeather/fedd/internal/group"
	"github.com/tailfeather/fedd/internal/snowflake"
	"github.com/tailfeather/fedd/models"
)

// A lane is the unit of delivery ordering: deliveries to the same
// inbox from the same account are attempted strictly in the order they
// were queued. Distinct lanes proceed independently and concurrently.
type lane struct {
	account snowflake.ID
	inbox   string
}

// Dispatcher drains the delivery queue: it signs and posts each queued
// activity to its inbox, retries transient failures with exponential
// backoff, and moves exhausted or rejected deliveries to the dead
// letter table. Failures never propagate to the caller that queued the
// delivery.
type Dispatcher struct {
	// Workers bounds the number of concurrent outbound requests.
	Workers int

	// MaxAttempts is the number of delivery attempts before a delivery
	// is moved to the dead letter table.
	MaxAttempts int

	// BaseDelay and MaxDelay shape the retry backoff:
	// BaseDelay * 2^attempt, capped at MaxDelay, plus jitter.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration

	// PollInterval is how often the queue is checked for due work when
	// nothing wakes the dispatcher earlier.
	PollInterval time.Duration

	db   *gorm.DB
	keys *KeyStore
	wake chan struct{}

	// deferred holds earliest next attempts recorded in memory when a
	// row update failed, so a wedged database does not cause a delivery
	// to be re-claimed and re-posted immediately.
	mu       sync.Mutex
	deferred map[uint32]time.Time
}

func NewDispatcher(db *gorm.DB, keys *KeyStore) *Dispatcher {
	return &Dispatcher{
		Workers:      8,
		MaxAttempts:  8,
		BaseDelay:    30 * time.Second,
		MaxDelay:     time.Hour,
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
		db:           db,
		keys:         keys,
		wake:         make(chan struct{}, 1),
		deferred:     make(map[uint32]time.Time),
	}
}

// Enqueue queues deliveries and wakes the dispatcher. Deliveries
// survive process restarts; cancelling the context that queued them
// does not cancel them.
func (d *Dispatcher) Enqueue(ctx context.Context, deliveries ...*models.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, delivery := range deliveries {
			if err := tx.Create(delivery).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.Wake()
	return nil
}

// Wake nudges the dispatcher to check the queue before the next poll.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued deliveries.
func (d *Dispatcher) Pending() (int64, error) {
	var n int64
	err := d.db.Model(&models.Delivery{}).Count(&n).Error
	return n, err
}

// Run delivers queued activities until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	jobs := make(chan *models.Delivery)
	done := make(chan lane)

	g := group.New(ctx)
	for i := 0; i < d.Workers; i++ {
		g.AddContext(func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case delivery := <-jobs:
					d.attempt(ctx, delivery)
					select {
					case done <- lane{delivery.AccountID, delivery.Inbox}:
					case <-ctx.Done():
						return nil
					}
				}
			}
		})
	}

	g.AddContext(func(ctx context.Context) error {
		ticker := time.NewTicker(d.PollInterval)
		defer ticker.Stop()

		inflight := make(map[lane]struct{})
		for {
			due, err := d.claim(inflight)
			if err != nil {
				log.Printf("dispatcher: claim: %v", err)
			}
			for _, delivery := range due {
				l := lane{delivery.AccountID, delivery.Inbox}
				inflight[l] = struct{}{}
			handoff:
				for {
					select {
					case jobs <- delivery:
						break handoff
					case finished := <-done:
						// a worker finishing elsewhere does not place
						// this job; keep offering it.
						delete(inflight, finished)
					case <-ctx.Done():
						return nil
					}
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case finished := <-done:
				delete(inflight, finished)
			case <-ticker.C:
			case <-d.wake:
			}
		}
	})
	return g.Wait()
}

// claim returns the deliveries that are due now, at most one per lane,
// skipping lanes with an attempt already in flight. Within a lane only
// the oldest delivery is ever claimable, so a later activity cannot
// overtake an earlier one.
func (d *Dispatcher) claim(inflight map[lane]struct{}) ([]*models.Delivery, error) {
	var due []*models.Delivery
	err := d.db.
		Where("next_attempt <= ?", time.Now()).
		Where("not exists (select 1 from deliveries o where o.account_id = deliveries.account_id and o.inbox = deliveries.inbox and o.id < deliveries.id)").
		Order("id").
		Limit(2 * d.Workers).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	d.mu.Lock()
	for id, until := range d.deferred {
		if !until.After(now) {
			delete(d.deferred, id)
		}
	}
	claimed := due[:0]
	for _, delivery := range due {
		if _, busy := inflight[lane{delivery.AccountID, delivery.Inbox}]; busy {
			continue
		}
		if until, ok := d.deferred[delivery.ID]; ok && until.After(now) {
			continue
		}
		claimed = append(claimed, delivery)
	}
	d.mu.Unlock()
	return claimed, nil
}

// deferUntil records an in-memory floor on a delivery's next attempt,
// used when the row itself could not be updated.
func (d *Dispatcher) deferUntil(id uint32, until time.Time) {
	d.mu.Lock()
	d.deferred[id] = until
	d.mu.Unlock()
}

// attempt makes one delivery attempt and records the outcome.
func (d *Dispatcher) attempt(ctx context.Context, delivery *models.Delivery) {
	keyID, priv, err := d.keys.SignerForAccount(delivery.AccountID)
	if err != nil {
		// no key, no retry: the signature can never be produced.
		d.bury(delivery, &SigningError{KeyID: delivery.KeyID, Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	client := &Client{keyID: keyID, privateKey: priv}
	status, err := client.Post(ctx, delivery.Inbox, delivery.Body)
	delivery.Attempts++

	switch {
	case err == nil && status >= 200 && status < 300:
		if err := d.db.Delete(delivery).Error; err != nil {
			log.Printf("dispatcher: completing delivery %d: %v", delivery.ID, err)
			d.deferUntil(delivery.ID, time.Now().Add(d.backoff(delivery.Attempts)))
		}
	case err == nil && permanent(status):
		d.bury(delivery, &PermanentRejection{Inbox: delivery.Inbox, StatusCode: status})
	default:
		if errors.As(err, new(*SigningError)) {
			d.bury(delivery, err)
			return
		}
		d.retry(delivery, &DeliveryError{Inbox: delivery.Inbox, StatusCode: status, Err: err})
	}
}

// permanent reports whether the remote rejected the activity outright.
// 408 and 429 are the retryable exceptions in the 4xx range.
func permanent(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

func (d *Dispatcher) retry(delivery *models.Delivery, cause error) {
	if delivery.Attempts >= d.MaxAttempts {
		d.bury(delivery, cause)
		return
	}
	delay := d.backoff(delivery.Attempts)
	err := d.db.Model(delivery).UpdateColumns(map[string]interface{}{
		"attempts":     delivery.Attempts,
		"next_attempt": time.Now().Add(delay),
		"last_result":  cause.Error(),
	}).Error
	if err != nil {
		log.Printf("dispatcher: scheduling retry of delivery %d: %v", delivery.ID, err)
		d.deferUntil(delivery.ID, time.Now().Add(delay))
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.BaseDelay << uint(attempt)
	if delay > d.MaxDelay || delay <= 0 {
		delay = d.MaxDelay
	}
	// jitter up to 25% to spread retries against a struggling host.
	return delay + time.Duration(rand.Int63n(int64(delay)/4+1))
}

// bury moves a delivery to the dead letter table for operator
// visibility. Dead letters are terminal; nothing retries them.
func (d *Dispatcher) bury(delivery *models.Delivery, cause error) {
	log.Printf("dispatcher: delivery %d to %s failed permanently after %d attempts: %v",
		delivery.ID, delivery.Inbox, delivery.Attempts, cause)
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.DeadLetter{
			AccountID:  delivery.AccountID,
			Inbox:      delivery.Inbox,
			ActivityID: delivery.ActivityID,
			Body:       delivery.Body,
			Attempts:   delivery.Attempts,
			LastError:  cause.Error(),
		}).Error; err != nil {
			return err
		}
		return tx.Delete(delivery).Error
	})
	if err != nil {
		log.Printf("dispatcher: recording dead letter for delivery %d: %v", delivery.ID, err)
		d.deferUntil(delivery.ID, time.Now().Add(d.backoff(delivery.Attempts)))
	}
}
