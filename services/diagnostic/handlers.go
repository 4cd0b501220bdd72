package diagnostic

import (
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/httpd"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/load"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func fields(ctx []keyvalue.T) []zap.Field {
	fs := make([]zap.Field, len(ctx))
	for i, kv := range ctx {
		fs[i] = zap.String(kv.Key, kv.Value)
	}
	return fs
}

func logError(l *zap.Logger, msg string, err error, ctx ...keyvalue.T) {
	l.Error(msg, append(fields(ctx), zap.Error(err))...)
}

// Storage handler

type StorageHandler struct {
	l *zap.Logger
}

func (h *StorageHandler) Info(msg string, path string) {
	h.l.Info(msg, zap.String("path", path))
}

func (h *StorageHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// Devices handler

type DevicesHandler struct {
	l *zap.Logger
}

func (h *DevicesHandler) ReservedAutoSMS(id string, count int, date string) {
	h.l.Debug("reserved automatic SMS", zap.String("device", id), zap.Int("count_today", count), zap.String("count_date", date))
}

func (h *DevicesHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// SMS handler

type SMSHandler struct {
	l *zap.Logger
}

func (h *SMSHandler) Accepted(number string, status int) {
	h.l.Debug("gateway accepted message", zap.String("number", maskNumber(number)), zap.Int("status", status))
}

func (h *SMSHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// maskNumber keeps the last four digits of a phone number.
func maskNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n))
	for i := range masked {
		if i < len(n)-4 {
			masked[i] = '*'
		} else {
			masked[i] = n[i]
		}
	}
	return string(masked)
}

// Dispatch handler

type DispatchHandler struct {
	l *zap.Logger
}

func (h *DispatchHandler) WithContext(ctx ...keyvalue.T) dispatch.Diagnostic {
	return &DispatchHandler{l: h.l.With(fields(ctx)...)}
}

func (h *DispatchHandler) ShortCircuited(reason dispatch.Reason) {
	h.l.Info("no automatic alert", zap.String("reason", string(reason)))
}

func (h *DispatchHandler) RateLimited(d ratelimit.Decision, now time.Time) {
	fs := []zap.Field{
		zap.Stringer("verdict", d.Verdict),
		zap.Int("sent_today", d.Effective),
	}
	if !d.NextAllowed.IsZero() {
		fs = append(fs, zap.String("next_allowed", humanize.RelTime(d.NextAllowed, now, "ago", "from now")))
	}
	h.l.Info("automatic alert rate limited", fs...)
}

func (h *DispatchHandler) SkippedRecipient(id, name string) {
	h.l.Info("skipping recipient without a valid phone number", zap.String("recipient_id", id), zap.String("recipient", name))
}

func (h *DispatchHandler) Dispatched(recordID string, attempted, accepted, failed, skipped int) {
	h.l.Info("automatic alert dispatched",
		zap.String("record", recordID),
		zap.Int("attempted", attempted),
		zap.Int("accepted", accepted),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
}

func (h *DispatchHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// MQTT handler

type MQTTHandler struct {
	l *zap.Logger
}

func (h *MQTTHandler) WithContext(ctx ...keyvalue.T) mqtt.Diagnostic {
	return &MQTTHandler{l: h.l.With(fields(ctx)...)}
}

func (h *MQTTHandler) Connected(broker string) {
	h.l.Info("connected to broker", zap.String("broker", broker))
}

func (h *MQTTHandler) ConnectionLost(err error) {
	h.l.Warn("lost connection to broker", zap.Error(err))
}

func (h *MQTTHandler) Subscribed(topic string, qos byte) {
	h.l.Info("subscribed", zap.String("topic", topic), zap.Uint8("qos", qos))
}

func (h *MQTTHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// HTTPD handler

type HTTPDHandler struct {
	l *zap.Logger
}

func (h *HTTPDHandler) StartingService() {
	h.l.Info("starting HTTP service")
}

func (h *HTTPDHandler) StoppedService() {
	h.l.Info("closed HTTP service")
}

func (h *HTTPDHandler) ListeningOn(addr string) {
	h.l.Info("listening on", zap.String("addr", addr))
}

func (h *HTTPDHandler) AuthenticationEnabled(enabled bool) {
	h.l.Info("authentication", zap.Bool("enabled", enabled))
}

func (h *HTTPDHandler) HTTP(method, uri string, status int, remote, reqID string, duration time.Duration) {
	h.l.Info("http request",
		zap.String("method", method),
		zap.String("uri", uri),
		zap.Int("status", status),
		zap.String("remote", remote),
		zap.String("request_id", reqID),
		zap.Duration("duration", duration),
	)
}

func (h *HTTPDHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// Load handler

type LoadHandler struct {
	l *zap.Logger
}

func (h *LoadHandler) Loading(kind, file string) {
	h.l.Debug("loading roster file", zap.String("kind", kind), zap.String("file", file))
}

func (h *LoadHandler) Loaded(kind string, created, updated int) {
	h.l.Info("loaded roster", zap.String("kind", kind), zap.Int("created", created), zap.Int("updated", updated))
}

func (h *LoadHandler) Error(msg string, err error, ctx ...keyvalue.T) {
	logError(h.l, msg, err, ctx...)
}

// Server handler

type ServerHandler struct {
	l *zap.Logger
}

func (h *ServerHandler) Info(msg string, ctx ...keyvalue.T) {
	h.l.Info(msg, fields(ctx)...)
}

func (h *ServerHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// Cmd handler

type CmdHandler struct {
	l *zap.Logger
}

func (h *CmdHandler) Info(msg string, ctx ...keyvalue.T) {
	h.l.Info(msg, fields(ctx)...)
}

func (h *CmdHandler) Error(msg string, err error) {
	logError(h.l, msg, err)
}

// Compile time checks that the handlers satisfy the service interfaces.
var (
	_ dispatch.Diagnostic = &DispatchHandler{}
	_ mqtt.Diagnostic     = &MQTTHandler{}
	_ httpd.Diagnostic    = &HTTPDHandler{}
	_ load.Diagnostic     = &LoadHandler{}
)
