package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_UnknownStageIsHealthy(t *testing.T) {
	m := NewMonitor(nil)
	assert.Equal(t, StatusHealthy, m.Status("never_seen"))
}

func TestMonitor_StaysHealthyOnSuccesses(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < 50; i++ {
		m.RecordSuccess("s")
	}
	assert.Equal(t, StatusHealthy, m.Status("s"))
}

func TestMonitor_ConsecutiveFailuresUnavailable(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < 10; i++ {
		m.RecordSuccess("s")
	}

	m.RecordFailure("s")
	m.RecordFailure("s")
	assert.NotEqual(t, StatusUnavailable, m.Status("s"))

	m.RecordFailure("s")
	assert.Equal(t, StatusUnavailable, m.Status("s"))
}

func TestMonitor_ErrorRateDegraded(t *testing.T) {
	m := NewMonitor(nil)
	// 3 spaced failures in a 20-wide window is a 15% error rate with no
	// consecutive run
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			m.RecordSuccess("s")
		}
		m.RecordFailure("s")
	}
	m.RecordSuccess("s")
	m.RecordSuccess("s")

	assert.Equal(t, StatusDegraded, m.Status("s"))
}

func TestMonitor_RecoversAfterSuccesses(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < 3; i++ {
		m.RecordFailure("s")
	}
	require.Equal(t, StatusUnavailable, m.Status("s"))

	// Old failures age out of the window
	for i := 0; i < windowSize; i++ {
		m.RecordSuccess("s")
	}
	assert.Equal(t, StatusHealthy, m.Status("s"))
}

func TestMonitor_Snapshot(t *testing.T) {
	m := NewMonitor(nil)
	m.RecordSuccess("a")
	m.RecordSuccess("a")
	m.RecordFailure("b")

	snaps := m.Snapshot()
	require.Len(t, snaps, 2)

	byStage := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		byStage[s.Stage] = s
	}

	assert.Equal(t, int64(2), byStage["a"].TotalSuccesses)
	assert.Equal(t, StatusHealthy, byStage["a"].Status)
	assert.Equal(t, int64(1), byStage["b"].TotalFailures)
	assert.Equal(t, 1, byStage["b"].ConsecutiveFailures)
	assert.Equal(t, 1.0, byStage["b"].ErrorRate)
}
