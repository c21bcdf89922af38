package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ATC-UW/pokerden-engine/internal/randutil"
)

func TestNewCanonicalOrder(t *testing.T) {
	d := New()

	first, err := d.Deal(1)
	require.NoError(t, err)
	assert.Equal(t, "2c", first[0].String())

	rest, err := d.Deal(51)
	require.NoError(t, err)
	assert.Equal(t, "As", rest[50].String())
}

func TestDealWithoutReplacement(t *testing.T) {
	d := New()
	d.Shuffle(randutil.New(1))

	seen := make(map[Card]bool)
	for i := 0; i < 52; i++ {
		cards, err := d.Deal(1)
		require.NoError(t, err)
		require.False(t, seen[cards[0]], "card %s dealt twice", cards[0])
		seen[cards[0]] = true
	}
	assert.Len(t, seen, 52)
}

func TestDealExhaustion(t *testing.T) {
	d := New()
	_, err := d.Deal(50)
	require.NoError(t, err)

	_, err = d.Deal(3)
	assert.Error(t, err)

	// A failed deal must not consume cards.
	assert.Equal(t, 2, d.Remaining())
}

func TestShuffleDeterministic(t *testing.T) {
	a, b := New(), New()
	a.Shuffle(randutil.New(99))
	b.Shuffle(randutil.New(99))

	ca, err := a.Deal(52)
	require.NoError(t, err)
	cb, err := b.Deal(52)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestShuffleResetsPosition(t *testing.T) {
	d := New()
	_, err := d.Deal(10)
	require.NoError(t, err)

	d.Shuffle(randutil.New(5))
	assert.Equal(t, 52, d.Remaining())
}

func TestCardStringRoundTrip(t *testing.T) {
	for c := Card(0); c < NumCards; c++ {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "A", "Asd", "Xs", "Az", "1h"} {
		_, err := Parse(s)
		assert.Error(t, err, "expected error for %q", s)
	}
}
