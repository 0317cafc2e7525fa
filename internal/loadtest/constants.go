package loadtest

// HTTP status code constants.
const (
	StatusOK        = 200
	StatusCreated   = 201
	StatusNoContent = 204
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Request retry constants.
const (
	maxAttempts = 3
)

// Lap time generation range, in milliseconds.
const (
	lapBaseMS   = 80_000
	lapSpreadMS = 20_000
)
