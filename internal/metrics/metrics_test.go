package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"voicecall-platform/internal/elevenlabs"
)

func TestVendorObserverLabelsResults(t *testing.T) {
	m := New(prometheus.NewRegistry())
	obs := m.VendorObserver()

	obs(elevenlabs.OpSubmit, 10*time.Millisecond, nil)
	obs(elevenlabs.OpStatus, time.Second, &elevenlabs.TimeoutError{Op: elevenlabs.OpStatus, After: time.Second})
	obs(elevenlabs.OpStatus, time.Millisecond, errors.New("dial tcp: refused"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VendorRequests.WithLabelValues(elevenlabs.OpSubmit, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VendorRequests.WithLabelValues(elevenlabs.OpStatus, "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VendorRequests.WithLabelValues(elevenlabs.OpStatus, "error")))
}

func TestPollHooksTrackActiveTasks(t *testing.T) {
	m := New(prometheus.NewRegistry())
	onStart, onFinish := m.PollHooks()

	onStart()
	onStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActivePolls))

	onFinish("completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivePolls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollOutcomes.WithLabelValues("completed")))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
