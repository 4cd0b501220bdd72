package dispatch

import (
	"github.com/Dyllj/flood-monitoring-system-sub000/services/alertlog"
)

// Writer records the outcome of a dispatch decision.
// Each write is attempted independently, a failure does not undo the others.
type Writer struct {
	log  AlertLog
	diag Diagnostic
}

func NewWriter(l AlertLog, d Diagnostic) *Writer {
	return &Writer{
		log:  l,
		diag: d,
	}
}

// Persist writes the alert mirror and appends the audit record.
// The returned map holds the error of each failed write keyed by ErrKeyMirror or ErrKeyAudit.
func (w *Writer) Persist(state alertlog.AlertState, record alertlog.DispatchRecord) (recordID string, errs map[string]error) {
	errs = make(map[string]error)
	if err := w.log.SetAlertState(state); err != nil {
		errs[ErrKeyMirror] = err
		w.diag.Error("failed to write alert mirror", err)
	}
	stored, err := w.log.AppendDispatch(record)
	if err != nil {
		errs[ErrKeyAudit] = err
		w.diag.Error("failed to append dispatch record", err)
	} else {
		recordID = stored.ID
	}
	return recordID, errs
}
