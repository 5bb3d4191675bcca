package deck

// Hand represents the cards held by a seat
type Hand []*Card

// HasCard returns true if the hand contains the specified card
func (h Hand) HasCard(card *Card) bool {
	for _, c := range h {
		if c.Equal(card) {
			return true
		}
	}

	return false
}

// CountAces returns the number of aces in the hand
func (h Hand) CountAces() int {
	n := 0
	for _, c := range h {
		if c.IsAce() {
			n++
		}
	}

	return n
}

// HasJoker returns true if the hand holds the joker
func (h Hand) HasJoker() bool {
	for _, c := range h {
		if c.IsJoker() {
			return true
		}
	}

	return false
}

func (h Hand) String() string {
	return CardsToString(h)
}

// Clone returns a deep copy of the hand
func (h Hand) Clone() Hand {
	if h == nil {
		return nil
	}

	h2 := make(Hand, len(h))
	for i, c := range h {
		cp := *c
		h2[i] = &cp
	}

	return h2
}
