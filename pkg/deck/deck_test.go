package deck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDeck(t *testing.T) {
	deck := New(nil)

	assert.Equal(t, 21, deck.CardsLeft())
	assert.Equal(t, Card{Rank: 10, Suit: Clubs}, *deck.Cards[0])
	assert.Equal(t, Card{Rank: 14, Suit: Spades}, *deck.Cards[19])
	assert.True(t, deck.Cards[20].IsJoker())
	ordered := CardsToString(deck.Cards)

	deck = New(rand.New(rand.NewSource(1))) // nolint:gosec
	assert.Equal(t, 21, deck.CardsLeft())
	assert.NotEqual(t, ordered, CardsToString(deck.Cards))
}

func TestNewDeck_multiplicities(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		deck := New(rand.New(rand.NewSource(seed))) // nolint:gosec

		ranks := make(map[int]int)
		seen := make(map[string]bool)
		jokers := 0
		for _, c := range deck.Cards {
			assert.True(t, c.Valid())
			assert.False(t, seen[CardToString(c)], "duplicate card %s", c)
			seen[CardToString(c)] = true

			if c.IsJoker() {
				jokers++
				continue
			}

			ranks[c.Rank]++
		}

		assert.Equal(t, 1, jokers)
		assert.Equal(t, map[int]int{10: 4, 11: 4, 12: 4, 13: 4, 14: 4}, ranks)
	}
}

func TestDeck_Shuffle_isUniform(t *testing.T) {
	// count how often the joker lands in each position
	const iterations = 21000
	gen := rand.New(rand.NewSource(42)) // nolint:gosec
	positions := make([]int, Size)
	for i := 0; i < iterations; i++ {
		d := New(gen)
		for pos, c := range d.Cards {
			if c.IsJoker() {
				positions[pos]++
			}
		}
	}

	for pos, count := range positions {
		// expected 1000 per position
		assert.InDelta(t, 1000, count, 200, "position %d", pos)
	}
}

func TestDeck_Deal(t *testing.T) {
	deck := New(nil)

	if !deck.CanDraw(21) {
		t.Errorf("expected CanDraw(21) to be true")
	}

	if deck.CanDraw(22) {
		t.Errorf("expected CanDraw(22) to be false")
	}

	cards, err := deck.Deal(3)
	assert.NoError(t, err)
	assert.Equal(t, "10c,11c,12c", CardsToString(cards))
	assert.Equal(t, 18, deck.CardsLeft())

	cards, err = deck.Deal(19)
	assert.Equal(t, ErrDeckExhausted, err)
	assert.Nil(t, cards)
	assert.Equal(t, 18, deck.CardsLeft())

	_, err = deck.Deal(18)
	assert.NoError(t, err)

	cards, err = deck.Deal(1)
	assert.Nil(t, cards)
	assert.Equal(t, ErrDeckExhausted, err)
}

func TestDeck_Deal_partySizes(t *testing.T) {
	for seats := 1; seats <= 7; seats++ {
		deck := New(rand.New(rand.NewSource(int64(seats)))) // nolint:gosec
		seen := make(map[string]bool)
		for i := 0; i < seats; i++ {
			cards, err := deck.Deal(3)
			assert.NoError(t, err)
			assert.Len(t, cards, 3)
			for _, c := range cards {
				assert.False(t, seen[CardToString(c)])
				seen[CardToString(c)] = true
			}
		}

		assert.Equal(t, Size-3*seats, deck.CardsLeft())
	}
}
