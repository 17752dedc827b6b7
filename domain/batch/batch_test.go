package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReport_Tally(t *testing.T) {
	start := time.Now()
	r := Report{
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Outcomes: []Outcome{
			{Status: StatusOrganized},
			{Status: StatusOrganized},
			{Status: StatusSkipped},
			{Status: StatusError},
		},
	}.Tally()

	assert.Equal(t, 2, r.Organized)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 2*time.Second, r.Duration())
}

func TestProgress(t *testing.T) {
	p := NewProgress("run").SetTotal(4)
	assert.Equal(t, StateInProgress, p.State())

	p = p.Advance(false, "a").Advance(true, "b")
	assert.Equal(t, 2, p.Current())
	assert.Equal(t, 1, p.Errors())
	assert.InDelta(t, 50.0, p.CompletionPercent(), 0.001)
	assert.False(t, p.State().IsTerminal())

	done := p.Complete()
	assert.True(t, done.State().IsTerminal())
	assert.Equal(t, "2 processed, 1 errors", done.Message())

	assert.Equal(t, float64(100), NewProgress("empty").Complete().CompletionPercent())
	assert.True(t, p.Cancel().State().IsTerminal())
}
