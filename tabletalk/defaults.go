// Package tabletalk holds application-wide defaults shared by config and wiring.
package tabletalk

import "time"

const (
	DefaultAppName = "tabletalk"

	DefaultServerAddr   = ":8080"
	DefaultDatabasePath = "./data/tabletalk.db"

	// DefaultEngineModel is the reasoning-engine model used when the config
	// does not name one.
	DefaultEngineModel = "gpt-4o-mini"

	// DefaultMaxRounds bounds reasoning-engine round-trips per response cycle.
	DefaultMaxRounds = 4

	DefaultEngineTimeout = 60 * time.Second
	DefaultCycleTimeout  = 5 * time.Minute
)
