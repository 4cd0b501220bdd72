package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/phone"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/recipients"
	"golang.org/x/sync/semaphore"
)

// FanOutResult tallies one fan-out.
type FanOutResult struct {
	// Attempted counts recipients with a valid number.
	Attempted int
	Accepted  int
	// Skipped counts recipients whose number could not be normalized.
	Skipped int
	// Failures maps recipient ID to the gateway error.
	Failures map[string]error
}

func (f FanOutResult) Failed() int {
	return len(f.Failures)
}

// Dispatcher sends one message to many recipients.
// Each send is independent, a failure for one recipient never affects another.
type Dispatcher struct {
	gateway Gateway
	sem     *semaphore.Weighted
	diag    Diagnostic
}

func NewDispatcher(g Gateway, maxConcurrent int, d Diagnostic) *Dispatcher {
	return &Dispatcher{
		gateway: g,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		diag:    d,
	}
}

type target struct {
	recipient recipients.Recipient
	number    string
}

// Dispatch sends msg to every recipient with a valid phone number and waits for all sends.
// Failed sends are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, rs []recipients.Recipient, msg alert.Message) FanOutResult {
	var res FanOutResult
	targets := make([]target, 0, len(rs))
	for _, r := range rs {
		number, ok := phone.Normalize(r.RawPhoneNumber)
		if !ok {
			res.Skipped++
			d.diag.SkippedRecipient(r.ID, r.Name)
			continue
		}
		targets = append(targets, target{recipient: r, number: number})
	}
	res.Attempted = len(targets)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			err := d.send(ctx, t, msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if res.Failures == nil {
					res.Failures = make(map[string]error)
				}
				res.Failures[t.recipient.ID] = err
				d.diag.WithContext(keyvalue.KV("recipient", t.recipient.Name)).Error("failed to send SMS", err)
				return
			}
			res.Accepted++
		}(t)
	}
	wg.Wait()
	return res
}

func (d *Dispatcher) send(ctx context.Context, t target, msg alert.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic sending to %s: %v", t.recipient.ID, p)
		}
	}()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)
	return d.gateway.Send(ctx, t.number, msg.String())
}
