package httpd

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/alertlog"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/devices"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/recipients"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/influxdata/httprouter"
	"github.com/pkg/errors"
)

const (
	defaultLimit = 100
	maxBodySize  = 1 << 20
)

type Engine interface {
	Ingest(ctx context.Context, ev alert.Event) dispatch.Result
}

type DeviceRegistry interface {
	Get(id string) (devices.Device, error)
	List(pattern string, offset, limit int) ([]devices.Device, error)
	Upsert(d devices.Device) (bool, error)
	Update(id string, f func(*devices.Device) error) (devices.Device, error)
	Delete(id string) error
}

type RecipientDirectory interface {
	Get(id string) (recipients.Recipient, error)
	Page(pattern string, offset, limit int) ([]recipients.Recipient, error)
	Put(r recipients.Recipient) error
	Delete(id string) error
}

type AlertLog interface {
	AlertState(deviceID string) (alertlog.AlertState, error)
	Dispatches(offset, limit int) ([]alertlog.DispatchRecord, error)
}

// readingResponse is the outcome of an ingested reading.
type readingResponse struct {
	DeviceID  string            `json:"deviceId"`
	State     dispatch.State    `json:"state"`
	Reason    dispatch.Reason   `json:"reason,omitempty"`
	Severity  *alert.Severity   `json:"severity,omitempty"`
	Verdict   string            `json:"verdict,omitempty"`
	RecordID  string            `json:"recordId,omitempty"`
	Attempted int               `json:"attempted"`
	Accepted  int               `json:"accepted"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func newReadingResponse(r dispatch.Result) readingResponse {
	resp := readingResponse{
		DeviceID:  r.DeviceID,
		State:     r.State,
		Reason:    r.Reason,
		RecordID:  r.RecordID,
		Attempted: r.FanOut.Attempted,
		Accepted:  r.FanOut.Accepted,
		Failed:    r.FanOut.Failed(),
		Skipped:   r.FanOut.Skipped,
	}
	if classified(r) {
		s := r.Severity
		resp.Severity = &s
		resp.Verdict = r.Decision.Verdict.String()
	}
	if len(r.Errors) > 0 {
		resp.Errors = make(map[string]string, len(r.Errors))
		for k, err := range r.Errors {
			resp.Errors[k] = err.Error()
		}
	}
	return resp
}

// classified reports whether handling got far enough for the severity to be known.
func classified(r dispatch.Result) bool {
	switch r.State {
	case dispatch.Received, dispatch.Gated, dispatch.Failed:
		return false
	case dispatch.ShortCircuited:
		switch r.Reason {
		case dispatch.ReasonCooldown, dispatch.ReasonQuota, dispatch.ReasonNoRecipients:
			return true
		}
		return false
	}
	return true
}

func (h *Handler) handleReading(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		HttpError(w, "failed to read body: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	ev, err := alert.UnmarshalEvent(body, h.Clock.Now())
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	// The engine bounds its own run time, a disconnecting producer must not abandon it.
	result := h.Engine.Ingest(context.Background(), ev)
	w.WriteHeader(http.StatusAccepted)
	w.Write(MarshalJSON(newReadingResponse(result), true))
}

type deviceResponse struct {
	devices.Device
	Link string `json:"link"`
}

func deviceLink(id string) string {
	return BasePath + "/devices/" + id
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	pattern, offset, limit, err := pageParams(r)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	ds, err := h.Devices.List(pattern, offset, limit)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	resp := struct {
		Devices []deviceResponse `json:"devices"`
	}{Devices: make([]deviceResponse, len(ds))}
	for i, d := range ds {
		resp.Devices[i] = deviceResponse{Device: d, Link: deviceLink(d.ID)}
	}
	w.Write(MarshalJSON(resp, true))
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	d, err := h.Devices.Get(id)
	if err != nil {
		writeLookupError(w, err, devices.ErrNoDeviceExists)
		return
	}
	w.Write(MarshalJSON(deviceResponse{Device: d, Link: deviceLink(d.ID)}, true))
}

// handlePutDevice creates or replaces the administrative fields of a device.
// The rate limiter counters of an existing device are kept.
func (h *Handler) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	var d devices.Device
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&d); err != nil {
		HttpError(w, "invalid json: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	if d.ID == "" {
		d.ID = id
	}
	if d.ID != id {
		HttpError(w, "device id in body does not match the URL", true, http.StatusBadRequest)
		return
	}
	if err := d.Validate(); err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	created, err := h.Devices.Upsert(d)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	stored, err := h.Devices.Get(id)
	if err != nil {
		writeLookupError(w, err, devices.ErrNoDeviceExists)
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	w.Write(MarshalJSON(deviceResponse{Device: stored, Link: deviceLink(id)}, true))
}

// handlePatchDevice applies an RFC 6902 JSON Patch to a device.
func (h *Handler) handlePatchDevice(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		HttpError(w, "failed to read body: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		HttpError(w, "invalid JSON Patch: "+err.Error(), true, http.StatusBadRequest)
		return
	}

	var badPatch error
	d, err := h.Devices.Update(id, func(d *devices.Device) error {
		orig, err := json.Marshal(d)
		if err != nil {
			return err
		}
		modified, err := patch.Apply(orig)
		if err != nil {
			badPatch = err
			return err
		}
		var updated devices.Device
		if err := json.Unmarshal(modified, &updated); err != nil {
			badPatch = err
			return err
		}
		if updated.ID != d.ID {
			badPatch = errors.New("cannot change the device id")
			return badPatch
		}
		if err := updated.Validate(); err != nil {
			badPatch = err
			return err
		}
		*d = updated
		return nil
	})
	switch {
	case badPatch != nil:
		HttpError(w, badPatch.Error(), true, http.StatusBadRequest)
	case err != nil:
		writeLookupError(w, err, devices.ErrNoDeviceExists)
	default:
		w.Write(MarshalJSON(deviceResponse{Device: d, Link: deviceLink(id)}, true))
	}
}

func (h *Handler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.Devices.Delete(idParam(r)); err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	pattern, offset, limit, err := pageParams(r)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	rs, err := h.Recipients.Page(pattern, offset, limit)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	resp := struct {
		Recipients []recipients.Recipient `json:"recipients"`
	}{Recipients: rs}
	if resp.Recipients == nil {
		resp.Recipients = []recipients.Recipient{}
	}
	w.Write(MarshalJSON(resp, true))
}

func (h *Handler) handleGetRecipient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recipients.Get(idParam(r))
	if err != nil {
		writeLookupError(w, err, recipients.ErrNoRecipientExists)
		return
	}
	w.Write(MarshalJSON(rec, true))
}

func (h *Handler) handlePutRecipient(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	var rec recipients.Recipient
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&rec); err != nil {
		HttpError(w, "invalid json: "+err.Error(), true, http.StatusBadRequest)
		return
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		HttpError(w, "recipient id in body does not match the URL", true, http.StatusBadRequest)
		return
	}
	if err := rec.Validate(); err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	_, err := h.Recipients.Get(id)
	created := errors.Is(err, recipients.ErrNoRecipientExists)
	if err != nil && !created {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	if err := h.Recipients.Put(rec); err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	w.Write(MarshalJSON(rec, true))
}

func (h *Handler) handleDeleteRecipient(w http.ResponseWriter, r *http.Request) {
	if err := h.Recipients.Delete(idParam(r)); err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	_, offset, limit, err := pageParams(r)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusBadRequest)
		return
	}
	records, err := h.AlertLog.Dispatches(offset, limit)
	if err != nil {
		HttpError(w, err.Error(), true, http.StatusInternalServerError)
		return
	}
	resp := struct {
		Dispatches []alertlog.DispatchRecord `json:"dispatches"`
	}{Dispatches: records}
	if resp.Dispatches == nil {
		resp.Dispatches = []alertlog.DispatchRecord{}
	}
	w.Write(MarshalJSON(resp, true))
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.AlertLog.AlertState(idParam(r))
	if err != nil {
		writeLookupError(w, err, alertlog.ErrNoAlertStateExists)
		return
	}
	w.Write(MarshalJSON(a, true))
}

func idParam(r *http.Request) string {
	return httprouter.ParamsFromContext(r.Context()).ByName("id")
}

// pageParams reads the pattern, offset and limit query parameters.
func pageParams(r *http.Request) (pattern string, offset, limit int, err error) {
	q := r.URL.Query()
	pattern = q.Get("pattern")
	limit = defaultLimit
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return "", 0, 0, errors.Errorf("invalid offset %q", s)
		}
	}
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			return "", 0, 0, errors.Errorf("invalid limit %q", s)
		}
	}
	return pattern, offset, limit, nil
}

func writeLookupError(w http.ResponseWriter, err, notFound error) {
	if errors.Is(err, notFound) {
		HttpError(w, err.Error(), true, http.StatusNotFound)
		return
	}
	HttpError(w, err.Error(), true, http.StatusInternalServerError)
}
