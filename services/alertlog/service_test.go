package alertlog_test

import (
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/alert"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/alertlog"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *alertlog.Service {
	t.Helper()
	s := alertlog.NewService()
	s.StorageService = storagetest.New(t)
	require.NoError(t, s.Open())
	return s
}

func TestService_AlertState(t *testing.T) {
	s := newService(t)
	_, err := s.AlertState("sensor01")
	assert.Equal(t, alertlog.ErrNoAlertStateExists, err)

	ts := time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetAlertState(alertlog.AlertState{
		DeviceID:  "sensor01",
		Distance:  160,
		Location:  "Marikina Bridge",
		Status:    alert.Elevated,
		Timestamp: ts,
	}))
	got, err := s.AlertState("sensor01")
	require.NoError(t, err)
	assert.True(t, got.AlertSent)
	assert.True(t, got.AutoSent)
	assert.Equal(t, alert.Elevated, got.Status)
	assert.Equal(t, 160.0, got.Distance)

	// The mirror holds only the latest alert.
	require.NoError(t, s.SetAlertState(alertlog.AlertState{
		DeviceID:  "sensor01",
		Distance:  90,
		Status:    alert.Normal,
		Timestamp: ts.Add(time.Hour),
	}))
	got, err = s.AlertState("sensor01")
	require.NoError(t, err)
	assert.Equal(t, alert.Normal, got.Status)
}

func TestService_Dispatches_NewestFirst(t *testing.T) {
	s := newService(t)
	start := time.Date(2024, 7, 1, 4, 0, 0, 0, time.UTC)
	for i, sensor := range []string{"sensor01", "sensor02", "sensor03"} {
		r, err := s.AppendDispatch(alertlog.DispatchRecord{
			SensorName: sensor,
			Distance:   160,
			Status:     alert.Elevated,
			Message:    "msg",
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
			Attempted:  1,
			Accepted:   1,
		})
		require.NoError(t, err)
		_, err = uuid.Parse(r.ID)
		assert.NoError(t, err)
		assert.Equal(t, alertlog.TypeAutomatic, r.Type)
	}

	records, err := s.Dispatches(0, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sensor03", records[0].SensorName)
	assert.Equal(t, "sensor02", records[1].SensorName)

	all, err := s.Dispatches(0, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := s.Dispatch(all[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "sensor01", got.SensorName)

	_, err = s.Dispatch("missing")
	assert.Equal(t, alertlog.ErrNoDispatchRecordExists, err)
}

func TestService_AppendDispatch_DuplicateID(t *testing.T) {
	s := newService(t)
	r := alertlog.DispatchRecord{ID: "fixed", SensorName: "sensor01", Timestamp: time.Now()}
	_, err := s.AppendDispatch(r)
	require.NoError(t, err)
	_, err = s.AppendDispatch(r)
	assert.Error(t, err, "the audit log is append only")
}
