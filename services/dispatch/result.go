package dispatch

import (
	"fmt"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
)

// State is a step of handling one reading.
type State int

const (
	Received State = iota
	Gated
	Classified
	RateChecked
	RecipientsFetched
	Reserved
	Dispatching
	Persisted
	Done
	ShortCircuited
	Failed
)

var stateNames = [...]string{
	Received:          "received",
	Gated:             "gated",
	Classified:        "classified",
	RateChecked:       "rate-checked",
	RecipientsFetched: "recipients-fetched",
	Reserved:          "reserved",
	Dispatching:       "dispatching",
	Persisted:         "persisted",
	Done:              "done",
	ShortCircuited:    "short-circuited",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason explains why handling stopped before Done.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotMeasurement Reason = "not-measurement"
	ReasonDeviceNotFound Reason = "device-not-found"
	ReasonIneligible     Reason = "ineligible"
	ReasonCooldown       Reason = "cooldown"
	ReasonQuota          Reason = "quota"
	ReasonNoRecipients   Reason = "no-recipients"
	ReasonTimeout        Reason = "timeout"
	ReasonPanic          Reason = "panic"
	ReasonError          Reason = "error"
)

func reasonFor(v ratelimit.Verdict) Reason {
	if v == ratelimit.RejectedQuota {
		return ReasonQuota
	}
	return ReasonCooldown
}

// Error keys of Result.Errors.
const (
	ErrKeyMirror   = "mirror"
	ErrKeyAudit    = "audit"
	ErrKeyCounters = "counters"
	ErrKeyInternal = "internal"

	errKeyGatewayPrefix = "gateway:"
)

func GatewayErrKey(recipientID string) string {
	return errKeyGatewayPrefix + recipientID
}

// Result describes what happened to one reading. It is meant for logs and tests,
// the event source never sees it as an error.
type Result struct {
	DeviceID string
	State    State
	Reason   Reason
	Severity alert.Severity
	Decision ratelimit.Decision
	FanOut   FanOutResult
	// RecordID is the ID of the audit record, empty when none was written.
	RecordID string
	Errors   map[string]error
}

func (r *Result) shortCircuit(reason Reason) Result {
	r.State = ShortCircuited
	r.Reason = reason
	return *r
}

func (r *Result) fail(reason Reason, key string, err error) Result {
	r.State = Failed
	r.Reason = reason
	r.addError(key, err)
	return *r
}

func (r *Result) addError(key string, err error) {
	if err == nil {
		return
	}
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[key] = err
}
