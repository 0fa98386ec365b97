package keyrange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekeeper/internal/value"
)

func TestOnly(t *testing.T) {
	r, err := Only(value.Int(7))
	require.NoError(t, err)

	assert.True(t, r.Includes(value.Int(7)))
	assert.True(t, r.Includes(value.Float(7)))
	assert.False(t, r.Includes(value.Int(6)))
	assert.False(t, r.Includes(value.String("7")))
}

func TestLowerBound(t *testing.T) {
	closed, err := LowerBound(value.Int(5), false)
	require.NoError(t, err)
	assert.True(t, closed.Includes(value.Int(5)))
	assert.True(t, closed.Includes(value.Int(500)))
	assert.True(t, closed.Includes(value.String("any string")))
	assert.False(t, closed.Includes(value.Int(4)))

	open, err := LowerBound(value.Int(5), true)
	require.NoError(t, err)
	assert.False(t, open.Includes(value.Int(5)))
	assert.True(t, open.Includes(value.Float(5.001)))
}

func TestUpperBound(t *testing.T) {
	r, err := UpperBound(value.Int(10), false)
	require.NoError(t, err)
	assert.True(t, r.Includes(value.Int(10)))
	assert.True(t, r.Includes(value.Int(-100)))
	assert.False(t, r.Includes(value.Int(11)))

	open, err := UpperBound(value.Int(10), true)
	require.NoError(t, err)
	assert.False(t, open.Includes(value.Int(10)))
}

func TestBound(t *testing.T) {
	r, err := Bound(value.Int(5), value.Int(10), false, false)
	require.NoError(t, err)

	for _, n := range []int64{5, 6, 9, 10} {
		assert.True(t, r.Includes(value.Int(n)), "%d", n)
	}
	for _, n := range []int64{4, 11} {
		assert.False(t, r.Includes(value.Int(n)), "%d", n)
	}

	open, err := Bound(value.Int(5), value.Int(10), true, true)
	require.NoError(t, err)
	assert.False(t, open.Includes(value.Int(5)))
	assert.False(t, open.Includes(value.Int(10)))
	assert.True(t, open.Includes(value.Int(7)))
}

func TestBound_Invalid(t *testing.T) {
	_, err := Bound(value.Int(10), value.Int(5), false, false)
	assert.True(t, errors.Is(err, ErrInvalidBound))

	_, err = Bound(value.Int(5), value.Int(5), true, false)
	assert.True(t, errors.Is(err, ErrInvalidBound))

	_, err = Only(value.Bool(true))
	assert.True(t, errors.Is(err, ErrInvalidBound))
}

func TestNilRangeMatchesEverything(t *testing.T) {
	var r *Range
	assert.True(t, r.Includes(value.Int(-1)))
	assert.True(t, r.Includes(value.String("x")))
	assert.Nil(t, r.EncodedLower())
	assert.Nil(t, r.EncodedUpper())
	assert.Equal(t, "(-inf, +inf)", r.String())
}

func TestString(t *testing.T) {
	r, err := Bound(value.Int(1), value.String("z"), false, true)
	require.NoError(t, err)
	assert.Equal(t, `[1, "z")`, r.String())

	lo, err := LowerBound(value.Int(3), false)
	require.NoError(t, err)
	assert.Equal(t, "[3, +inf)", lo.String())
}
