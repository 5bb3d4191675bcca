package util

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var adjectives = []string{
	"Lucky", "Bold", "Quiet", "Sly", "Steady", "Daring", "Cool", "Sharp", "Patient", "Reckless", "Grinning",
	"Silent", "Red", "Blue", "Green", "Golden", "Silver", "Smiling", "Stubborn", "Grand", "Clever", "Wild",
	"Calm", "Nimble", "Cunning", "Brave", "Sleepy", "Jolly",
}

var nicknames = []string{
	"Joker", "Dealer", "Bluffer", "Gambler", "Shark", "Fox", "Owl", "Wolf", "Bear", "Raven", "Tiger", "Otter",
	"Badger", "Hawk", "Lynx", "Ace", "Knight", "Rook", "Jackal", "Viper", "Falcon", "Panda", "Beaver",
}

var (
	random     = rand.New(rand.NewSource(time.Now().UnixNano())) // nolint:gosec
	randomLock sync.Mutex
)

// GetRandomName returns a random display name by combining an adjective with a nickname
func GetRandomName() string {
	randomLock.Lock()
	defer randomLock.Unlock()

	adjectivesIndex := random.Intn(len(adjectives))
	nicknamesIndex := random.Intn(len(nicknames))

	return fmt.Sprintf("%s %s", adjectives[adjectivesIndex], nicknames[nicknamesIndex])
}
