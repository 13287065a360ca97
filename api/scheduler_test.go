package api

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/ledger"
)

type countingVerifier struct {
	calls  atomic.Int32
	result []ledger.Discrepancy
	err    error
}

func (v *countingVerifier) Verify(context.Context) ([]ledger.Discrepancy, error) {
	v.calls.Add(1)
	return v.result, v.err
}

func TestAuditScheduler_RunsOnInterval(t *testing.T) {
	// GIVEN: A scheduler ticking every 10ms
	v := &countingVerifier{result: []ledger.Discrepancy{{PaymentMethodID: uuid.New(), Name: "Visa"}}}
	s := NewAuditScheduler(v, 10*time.Millisecond, zerolog.Nop())

	// WHEN: Started
	s.Start()
	s.Start() // second start is a no-op

	// THEN: It runs at once and then repeatedly
	assert.Eventually(t, func() bool { return v.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.NextRunTime().IsZero())

	s.Stop()
	s.Stop()
	assert.True(t, s.NextRunTime().IsZero())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Len(t, last.Discrepancies, 1)
	assert.NoError(t, last.Err)
}

func TestAuditScheduler_Disabled(t *testing.T) {
	// GIVEN: A zero interval
	v := &countingVerifier{err: assert.AnError}
	s := NewAuditScheduler(v, 0, zerolog.Nop())

	// WHEN: Started
	s.Start()
	defer s.Stop()

	// THEN: Nothing runs on its own, but RunNow still works
	_, ok := s.Last()
	assert.False(t, ok)
	assert.Equal(t, int32(0), v.calls.Load())

	report := s.RunNow(context.Background())
	assert.ErrorIs(t, report.Err, assert.AnError)
	assert.False(t, toAuditReportDTO(report).Consistent)
	assert.Equal(t, int32(1), v.calls.Load())
}
