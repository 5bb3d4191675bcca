package seka

import "seka-server/pkg/deck"

// card values used by the suit sums
const (
	aceValue   = 11
	jokerValue = 11
	cardValue  = 10

	// best same-suit sum: ace, joker and one ten-valued card
	bestSuitSum = aceValue + jokerValue + cardValue
)

// Score returns the value of a 3-card hand
//
// The base score is the best single-suit sum: aces and the joker count 11 and
// every other card counts 10. The joker belongs to every suit in the hand.
// Two or more aces score at least rules.TwoAces, and three cards of the same
// rank (a "seka") score rules.SekaBase plus the rank above ten.
// Equal scores are not broken here; ties go to svara.
func Score(hand deck.Hand, rules ScoreRules) int {
	if len(hand) == 0 {
		return 0
	}

	score := suitScore(hand)

	if hand.CountAces() >= 2 && rules.TwoAces > score {
		score = rules.TwoAces
	}

	if rank, ok := threeOfAKind(hand); ok {
		if seka := rules.SekaBase + rank - deck.Ten; seka > score {
			score = seka
		}
	}

	return score
}

func suitScore(hand deck.Hand) int {
	sums := make(map[deck.Suit]int)
	joker := hand.HasJoker()
	for _, c := range hand {
		if c.IsJoker() {
			continue
		}

		sums[c.Suit] += cardScore(c)
	}

	if joker && len(sums) == 0 {
		return jokerValue
	}

	best := 0
	for _, sum := range sums {
		if joker {
			sum += jokerValue
		}

		if sum > best {
			best = sum
		}
	}

	return best
}

func cardScore(c *deck.Card) int {
	if c.IsAce() {
		return aceValue
	}

	return cardValue
}

func threeOfAKind(hand deck.Hand) (int, bool) {
	if len(hand) != HandSize {
		return 0, false
	}

	rank := hand[0].Rank
	for _, c := range hand {
		if c.IsJoker() || c.Rank != rank {
			return 0, false
		}
	}

	return rank, true
}

// MaxScore returns the best possible score under the rules (three aces)
func MaxScore(rules ScoreRules) int {
	return rules.SekaBase + deck.Ace - deck.Ten
}
