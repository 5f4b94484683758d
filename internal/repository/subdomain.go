package repository

import (
	"fmt"
	"math/rand"
)

// SubdomainGenerator proposes a candidate subdomain label. Uniqueness is
// enforced by the store, not the generator.
type SubdomainGenerator func() string

var adjectives = []string{
	"amber", "bold", "brave", "bright", "calm", "clever", "cosmic", "crisp",
	"eager", "fancy", "gentle", "golden", "happy", "humble", "jolly", "keen",
	"lively", "lucky", "mellow", "merry", "misty", "noble", "polar", "proud",
	"quick", "quiet", "rapid", "royal", "rustic", "silent", "silver", "smart",
	"snowy", "solar", "steady", "sunny", "swift", "tidy", "vivid", "witty",
}

var nouns = []string{
	"anchor", "aurora", "badger", "beacon", "breeze", "canyon", "cedar", "comet",
	"coral", "delta", "falcon", "fern", "fjord", "forest", "galaxy", "harbor",
	"heron", "island", "lagoon", "lantern", "maple", "meadow", "mesa", "nebula",
	"orbit", "otter", "panda", "pebble", "pine", "prairie", "quartz", "raven",
	"reef", "river", "summit", "tiger", "tundra", "valley", "willow", "zephyr",
}

// RandomSubdomain returns a label of the form <adjective>-<noun>-<number>.
func RandomSubdomain() string {
	return fmt.Sprintf("%s-%s-%d",
		adjectives[rand.Intn(len(adjectives))],
		nouns[rand.Intn(len(nouns))],
		rand.Intn(1000),
	)
}
