package tower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrozenSpeed(t *testing.T) {
	p := FrozenSpeed{}
	assert.Equal(t, PolicyFrozen, p.Name())
	for i := 1; i < 50; i++ {
		assert.Equal(t, 350.0, p.NextSpeed(350, i))
	}
}

func TestRampSpeed(t *testing.T) {
	p := DefaultRampSpeed()

	assert.Equal(t, 350.0, p.NextSpeed(350, 4))
	assert.Equal(t, 390.0, p.NextSpeed(350, 5))
	assert.Equal(t, 800.0, p.NextSpeed(790, 10))
	assert.Equal(t, 800.0, p.NextSpeed(800, 15))
	assert.Equal(t, 350.0, p.NextSpeed(350, 0))
}

func TestRampSpeed_NeverDecreases(t *testing.T) {
	p := RampSpeed{Step: 40, Every: 1, Max: 100}
	assert.Equal(t, 350.0, p.NextSpeed(350, 3))
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.IsType(t, FrozenSpeed{}, p)

	p, err = PolicyByName(PolicyRamp)
	require.NoError(t, err)
	assert.Equal(t, DefaultRampSpeed(), p)

	_, err = PolicyByName("turbo")
	assert.Error(t, err)
}

func TestPoints(t *testing.T) {
	tuning := DefaultTuning()
	assert.Equal(t, 6, PerfectPoints(tuning, 1))
	assert.Equal(t, 7, PerfectPoints(tuning, 3))
	assert.Equal(t, 9, PerfectPoints(tuning, 9))
	assert.Equal(t, 3, PlacementPoints(tuning, true))
	assert.Equal(t, 1, PlacementPoints(tuning, false))
}

func TestTuningValidate(t *testing.T) {
	require.NoError(t, DefaultTuning().Validate())

	bad := DefaultTuning()
	bad.MinBlockWidth = 500
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTuning)

	bad = DefaultTuning()
	bad.BaseYRatio = 1.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTuning)
}

func TestOutcomeKindText(t *testing.T) {
	b, err := OutcomePerfect.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "perfect", string(b))

	var k OutcomeKind
	require.NoError(t, k.UnmarshalText([]byte("miss")))
	assert.Equal(t, OutcomeMiss, k)
	assert.Error(t, k.UnmarshalText([]byte("meh")))
}
