package domain

// Pipeline defaults used when a component is built with a zero setting.
const (
	DefaultChunkSize       = 800
	DefaultChunkOverlap    = 150
	DefaultUpsertBatchSize = 100
	DefaultTopK            = 5
	DefaultScoreThreshold  = 0.5
	DefaultContextLimit    = 3
	DefaultMaxImages       = 3
	DefaultTemperature     = 0.3
	DefaultMaxTokens       = 1000
)
