package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCToF(t *testing.T) {
	assert.Equal(t, 32.0, CToF(0))
	assert.Equal(t, 212.0, CToF(100))
	assert.Equal(t, 98.6, CToF(37))
	assert.Equal(t, -40.0, CToF(-40))
}

func TestMmToIn(t *testing.T) {
	assert.Equal(t, 1.0, MmToIn(25.4))
	assert.Equal(t, 0.0, MmToIn(0))
	assert.Equal(t, 0.5, MmToIn(12.7))
}

func TestToPercent(t *testing.T) {
	// Fractional water content is scaled to a percentage.
	assert.Equal(t, 35.0, ToPercent(0.35))
	assert.Equal(t, 100.0, ToPercent(1.0))

	// Values already above 1 pass through unscaled.
	assert.Equal(t, 55.0, ToPercent(55))
	assert.Equal(t, 42.7, ToPercent(42.7))
}

func TestConvertPtrSkipsAbsentAndNonFinite(t *testing.T) {
	assert.Nil(t, convertPtr(nil, CToF))

	nan := 0.0
	nan /= nan
	assert.Nil(t, convertPtr(&nan, CToF))

	v := 10.0
	out := convertPtr(&v, CToF)
	if assert.NotNil(t, out) {
		assert.Equal(t, 50.0, *out)
	}
}
