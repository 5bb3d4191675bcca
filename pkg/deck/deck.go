package deck

import (
	"errors"

	"seka-server/internal/rng"
)

// Size is the number of cards in a seka deck
const Size = 21

// ErrDeckExhausted is returned when more cards are requested than remain in the deck
var ErrDeckExhausted = errors.New("deck exhausted")

// Deck represents a seka deck: 10 through ace in four suits plus the joker
type Deck struct {
	Cards []*Card `json:"cards"`
}

// New returns a new deck shuffled with the generator.
// A nil generator leaves the deck unshuffled.
func New(gen rng.Generator) *Deck {
	d := &Deck{}
	d.buildDeck()

	if gen != nil {
		d.Shuffle(gen)
	}

	return d
}

func (d *Deck) buildDeck() {
	cards := make([]*Card, 0, Size)
	for _, suit := range Suits {
		for _, rank := range Ranks {
			cards = append(cards, &Card{
				Rank: rank,
				Suit: suit,
			})
		}
	}

	d.Cards = append(cards, Joker())
}

// Shuffle performs an unbiased Fisher–Yates shuffle of the remaining cards
func (d *Deck) Shuffle(gen rng.Generator) {
	for j := len(d.Cards) - 1; j > 0; j-- {
		i := gen.Intn(j + 1)

		d.Cards[i], d.Cards[j] = d.Cards[j], d.Cards[i]
	}
}

// Deal removes n cards from the top of the deck
// If fewer than n cards remain, ErrDeckExhausted is returned and the deck is left untouched.
func (d *Deck) Deal(n int) ([]*Card, error) {
	if !d.CanDraw(n) {
		return nil, ErrDeckExhausted
	}

	cards := make([]*Card, n)
	copy(cards, d.Cards[:n])
	d.Cards = d.Cards[n:]

	return cards, nil
}

// CanDraw returns true if there are {want} cards left in the deck
func (d *Deck) CanDraw(want int) bool {
	return want >= 0 && len(d.Cards) >= want
}

// CardsLeft returns the number of cards left in the deck
func (d *Deck) CardsLeft() int {
	return len(d.Cards)
}
