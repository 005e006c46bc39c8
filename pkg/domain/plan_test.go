package domain_test

import (
	"testing"

	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func validPlan() domain.Plan {
	return domain.Plan{
		Name: "scan",
		Sweeps: []domain.Sweep{
			{Instrument: "lo", Parameter: "frequency", Values: []float64{1e9, 2e9}},
			{Instrument: "lo", Parameter: "power", Values: []float64{-10, -5, 0}},
		},
		Acquire: domain.Acquisition{Instrument: "digitizer"},
	}
}

func TestPlanTotalPoints(t *testing.T) {
	plan := validPlan()
	assert.Equal(t, 6, plan.TotalPoints())

	plan.Repetitions = 4
	assert.Equal(t, 24, plan.TotalPoints())

	assert.Equal(t, 1, domain.Plan{Acquire: domain.Acquisition{Instrument: "d"}}.TotalPoints(),
		"a plan with no sweeps is a single-point acquisition")
}

func TestPlanShape(t *testing.T) {
	plan := validPlan()
	assert.Equal(t, []int{2, 3}, plan.Shape())

	plan.Repetitions = 4
	assert.Equal(t, []int{2, 3, 4}, plan.Shape(), "repetitions form the innermost axis")

	plan.Repetitions = 1
	assert.Equal(t, []int{2, 3}, plan.Shape(), "a single repetition adds no axis")
}

func TestPlanValidate(t *testing.T) {
	assert.NoError(t, validPlan().Validate())

	t.Run("missing name", func(t *testing.T) {
		plan := validPlan()
		plan.Name = ""
		assert.Error(t, plan.Validate())
	})

	t.Run("missing acquisition instrument", func(t *testing.T) {
		plan := validPlan()
		plan.Acquire.Instrument = ""
		assert.Error(t, plan.Validate())
	})

	t.Run("sweep with no values", func(t *testing.T) {
		plan := validPlan()
		plan.Sweeps[0].Values = nil
		assert.Error(t, plan.Validate())
	})

	t.Run("duplicate sweep target", func(t *testing.T) {
		plan := validPlan()
		plan.Sweeps[1].Parameter = "frequency"
		assert.Error(t, plan.Validate())
	})

	t.Run("incomplete target", func(t *testing.T) {
		plan := validPlan()
		plan.Sweeps[0].Parameter = ""
		assert.Error(t, plan.Validate())
	})

	t.Run("negative repetitions", func(t *testing.T) {
		plan := validPlan()
		plan.Repetitions = -1
		assert.Error(t, plan.Validate())
	})
}
