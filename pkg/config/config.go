package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	StoreType       string        // snapshot backend: memory, file, sqlite, nats
	StoreFile       string        // path of the snapshot file (file backend)
	SQLiteFile      string        // path of the sqlite database (sqlite backend)
	NatsURL         string        // url of the NATS server (nats backend)
	NatsBucket      string        // name of the JetStream key/value bucket
	SnapshotKey     string        // key of the snapshot within sqlite/nats
	Debounce        time.Duration // minimum time between two accepted laps of a participant
	LightDelay      time.Duration // delay between two start lights
	Lights          int           // number of start lights
	RefreshInterval time.Duration // display refresh while the session is running
	LogLevel        string        // sets the log level (zap log level values)
	LogFormat       string        // text vs json
	LogConfig       string        // path to log config file
	EnableTelemetry bool          // enable telemetry
)

// Config holds the configuration values which are used by the application
type Config struct {
	Debounce        time.Duration
	LightDelay      time.Duration
	Lights          int
	RefreshInterval time.Duration
}

// FromFlags collects the processing related values resolved from the CLI
func FromFlags() Config {
	return Config{
		Debounce:        Debounce,
		LightDelay:      LightDelay,
		Lights:          Lights,
		RefreshInterval: RefreshInterval,
	}
}
