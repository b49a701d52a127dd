// Command hunt runs the scavenger hunt pipeline locally.
//
// State lives in a SQLite file and verification events travel over an
// in-memory channel, so a whole upload can be replayed end to end without
// AWS: the analyzer labels the photo with a static oracle, the updater
// applies the event and the aggregator recomputes group completion.
//
// Usage:
//
//	hunt item add wolf --name Wolf --synonyms "gray wolf,timber wolf"
//	hunt group create --id team-1 --kind team --items wolf,owl
//	hunt upload team-1 wolf --labels "wolf:98,snow:80"
//	hunt status team-1
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
