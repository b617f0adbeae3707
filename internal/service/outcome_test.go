package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pipphxntom/AeonPay/internal/model"
)

func TestFixedOutcome(t *testing.T) {
	assert.Equal(t, model.ExecutionSuccess, FixedOutcome(model.ExecutionSuccess).Decide("m-1", decimal.NewFromInt(10)))
	assert.Equal(t, model.ExecutionFailed, FixedOutcome(model.ExecutionFailed).Decide("m-1", decimal.NewFromInt(10)))
}

func TestProbabilisticOutcome_RateOne(t *testing.T) {
	p := NewProbabilisticOutcome(1.0)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, model.ExecutionSuccess, p.Decide("m-1", decimal.NewFromInt(1)))
	}
}

func TestProbabilisticOutcome_RateZero(t *testing.T) {
	p := NewProbabilisticOutcome(0.0)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, model.ExecutionFailed, p.Decide("m-1", decimal.NewFromInt(1)))
	}
}

func TestProbabilisticOutcome_RateApproximate(t *testing.T) {
	p := NewProbabilisticOutcome(0.75)

	successes := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if p.Decide("m-1", decimal.NewFromInt(1)) == model.ExecutionSuccess {
			successes++
		}
	}

	ratio := float64(successes) / float64(trials)
	assert.InDelta(t, 0.75, ratio, 0.03)
}
