// Package dispatch is the automatic alert engine. It turns a single sensor reading into
// at most one rate limited SMS fan-out and records the outcome.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/alertlog"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/devices"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/recipients"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type DeviceStore interface {
	Get(id string) (devices.Device, error)
	ReserveAutoSMS(id string, p ratelimit.Policy, now time.Time) (ratelimit.Decision, error)
}

type RecipientDirectory interface {
	List() ([]recipients.Recipient, error)
}

// LastUpdater records when a device last reported.
type LastUpdater interface {
	SetLastUpdate(id string, t time.Time) error
}

type Gateway interface {
	Send(ctx context.Context, number, message string) error
}

type AlertLog interface {
	SetAlertState(alertlog.AlertState) error
	AppendDispatch(alertlog.DispatchRecord) (alertlog.DispatchRecord, error)
}

type Diagnostic interface {
	WithContext(ctx ...keyvalue.T) Diagnostic

	ShortCircuited(reason Reason)
	RateLimited(d ratelimit.Decision, now time.Time)
	SkippedRecipient(id, name string)
	Dispatched(recordID string, attempted, accepted, failed, skipped int)
	Error(msg string, err error)
}

type Service struct {
	DeviceStore DeviceStore
	Recipients  RecipientDirectory
	Gateway     Gateway
	AlertLog    AlertLog
	// LastUpdater is optional, Ingest skips the update when it is nil.
	LastUpdater LastUpdater
	// Registerer receives the engine metrics when set.
	Registerer prometheus.Registerer
	Clock      clock.Clock

	mu         sync.RWMutex
	policy     ratelimit.Policy
	composer   *alert.Composer
	recency    time.Duration
	maxExec    time.Duration
	maxSends   int
	dispatcher *Dispatcher
	writer     *Writer

	metrics *metrics
	diag    Diagnostic
}

func NewService(c Config, d Diagnostic) (*Service, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid dispatch config")
	}
	policy, _ := c.Policy()
	composer, _ := c.Composer()
	return &Service{
		Clock:    clock.New(),
		policy:   policy,
		composer: composer,
		recency:  time.Duration(c.RecencyThreshold),
		maxExec:  time.Duration(c.MaxExecutionDuration),
		maxSends: c.MaxConcurrentSends,
		metrics:  newMetrics(),
		diag:     d,
	}, nil
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeviceStore == nil || s.Recipients == nil || s.Gateway == nil || s.AlertLog == nil {
		return errors.New("dispatch service is missing a dependency")
	}
	s.dispatcher = NewDispatcher(s.Gateway, s.maxSends, s.diag)
	s.writer = NewWriter(s.AlertLog, s.diag)
	if s.Registerer != nil {
		if err := s.metrics.register(s.Registerer); err != nil {
			return errors.Wrap(err, "register dispatch metrics")
		}
	}
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Registerer != nil {
		s.metrics.unregister(s.Registerer)
	}
	return nil
}

// Policy returns the rate limit policy in effect.
func (s *Service) Policy() ratelimit.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Ingest records that a reading arrived for its device and then handles it.
// Readings for unknown devices are passed on so Handle can report them.
func (s *Service) Ingest(ctx context.Context, ev alert.Event) Result {
	if s.LastUpdater != nil && ev.IsMeasurement() {
		err := s.LastUpdater.SetLastUpdate(ev.DeviceID, ev.Reading.Timestamp)
		if err != nil && !errors.Is(err, devices.ErrNoDeviceExists) {
			s.diag.WithContext(keyvalue.KV("device", ev.DeviceID)).Error("failed to record last update", err)
		}
	}
	return s.Handle(ctx, ev)
}

// Handle runs one reading through the engine:
// gate, classify, rate check, fetch recipients, reserve, compose, fan-out, persist.
// Any step may short-circuit. Handle never returns an error, everything worth knowing
// about the outcome is in the Result and the logs.
func (s *Service) Handle(ctx context.Context, ev alert.Event) (r Result) {
	start := s.Clock.Now()
	r = Result{DeviceID: ev.DeviceID, State: Received}
	diag := s.diag.WithContext(keyvalue.KV("device", ev.DeviceID))
	defer func() {
		if p := recover(); p != nil {
			r.fail(ReasonPanic, ErrKeyInternal, fmt.Errorf("panic: %v", p))
		}
		switch r.State {
		case ShortCircuited:
			diag.ShortCircuited(r.Reason)
		case Failed:
			for _, k := range []string{ErrKeyInternal, ErrKeyCounters} {
				if err, ok := r.Errors[k]; ok {
					diag.WithContext(keyvalue.KV("reason", string(r.Reason))).Error("failed to handle reading", err)
				}
			}
		}
		s.metrics.observe(r, s.Clock.Since(start).Seconds())
	}()

	s.mu.RLock()
	policy, composer := s.policy, s.composer
	dispatcher, writer := s.dispatcher, s.writer
	s.mu.RUnlock()
	if dispatcher == nil {
		return r.fail(ReasonError, ErrKeyInternal, errors.New("dispatch service is not open"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxExec)
	defer cancel()

	if !ev.IsMeasurement() {
		return r.shortCircuit(ReasonNotMeasurement)
	}
	distance := *ev.Reading.Distance

	device, err := s.DeviceStore.Get(ev.DeviceID)
	if errors.Is(err, devices.ErrNoDeviceExists) {
		return r.shortCircuit(ReasonDeviceNotFound)
	} else if err != nil {
		return r.fail(ReasonError, ErrKeyInternal, errors.Wrap(err, "read device"))
	}
	now := s.Clock.Now()
	if !alert.Eligible(device.Status, ev.Reading.Timestamp, now, s.recency) {
		return r.shortCircuit(ReasonIneligible)
	}
	r.State = Gated

	r.Severity = alert.Classify(distance, device.AlertLevel)
	r.State = Classified

	r.Decision = policy.Check(device.Counters(), now)
	if !r.Decision.Allowed() {
		diag.RateLimited(r.Decision, now)
		return r.shortCircuit(reasonFor(r.Decision.Verdict))
	}
	r.State = RateChecked

	rs, err := s.Recipients.List()
	if err != nil {
		return r.fail(ReasonError, ErrKeyInternal, errors.Wrap(err, "fetch recipients"))
	}
	if len(rs) == 0 {
		return r.shortCircuit(ReasonNoRecipients)
	}
	r.State = RecipientsFetched

	if err := ctx.Err(); err != nil {
		return r.fail(ReasonTimeout, ErrKeyInternal, err)
	}

	// The snapshot check above may be stale. The reservation re-checks the policy
	// against the stored counters and advances them in one transaction.
	r.Decision, err = s.DeviceStore.ReserveAutoSMS(device.ID, policy, now)
	if err != nil {
		if _, ok := ratelimit.IsRejected(err); ok {
			diag.RateLimited(r.Decision, now)
			return r.shortCircuit(reasonFor(r.Decision.Verdict))
		}
		if errors.Is(err, devices.ErrNoDeviceExists) {
			return r.shortCircuit(ReasonDeviceNotFound)
		}
		return r.fail(ReasonError, ErrKeyCounters, err)
	}
	r.State = Reserved

	msg, err := composer.Compose(device.Location, distance, r.Severity, now)
	if err != nil {
		// Counters are already advanced, still leave an audit trail of the decision.
		r.addError(ErrKeyInternal, errors.Wrap(err, "compose message"))
	}

	r.State = Dispatching
	if err == nil {
		r.FanOut = dispatcher.Dispatch(ctx, rs, msg)
		for id, ferr := range r.FanOut.Failures {
			r.addError(GatewayErrKey(id), ferr)
		}
	}

	recordID, errs := writer.Persist(alertlog.AlertState{
		DeviceID:  device.ID,
		Distance:  distance,
		Location:  device.Location,
		Status:    r.Severity,
		Timestamp: now,
	}, alertlog.DispatchRecord{
		Type:       alertlog.TypeAutomatic,
		SensorName: device.ID,
		Distance:   distance,
		Location:   device.Location,
		Status:     r.Severity,
		Message:    msg.String(),
		Timestamp:  now,
		Attempted:  r.FanOut.Attempted,
		Accepted:   r.FanOut.Accepted,
		Failed:     r.FanOut.Failed(),
		Skipped:    r.FanOut.Skipped,
	})
	r.RecordID = recordID
	for k, werr := range errs {
		r.addError(k, werr)
	}
	r.State = Persisted

	if _, ok := r.Errors[ErrKeyInternal]; ok {
		return r.fail(ReasonError, ErrKeyInternal, nil)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(ReasonTimeout, ErrKeyInternal, err)
	}
	diag.Dispatched(recordID, r.FanOut.Attempted, r.FanOut.Accepted, r.FanOut.Failed(), r.FanOut.Skipped)
	r.State = Done
	return r
}
