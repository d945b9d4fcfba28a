// Package optimization provides buffer and pool sizing profiles for the server.
package optimization

import (
	"fmt"
	"runtime"
)

// Profile names accepted by ForProfile.
const (
	ProfileDefault     = "default"
	ProfileStressTest  = "stress"
	ProfileLowResource = "low"
)

// Config holds tuned parameters for a given load.
type Config struct {
	// Channel buffer sizes
	BroadcastChannelBuffer int
	ClientSendBuffer       int
	SpawnQueueBuffer       int

	// Connection pools
	DBMaxOpenConns int
	DBMaxIdleConns int
	RedisPoolSize  int

	// Rate limiting
	MaxMessagesPerSecond int
	MessageBurst         int
	MaxClients           int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,
		SpawnQueueBuffer:       128,

		// sqlite serializes writers anyway; a few conns keep readers unblocked.
		DBMaxOpenConns: 4,
		DBMaxIdleConns: 2,

		RedisPoolSize: numCPU * 2,

		MaxMessagesPerSecond: 20,
		MessageBurst:         5,
		MaxClients:           200,
	}
}

// StressTestConfig returns aggressive settings for stress testing.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,
		SpawnQueueBuffer:       1024,

		DBMaxOpenConns: 8,
		DBMaxIdleConns: 4,
		RedisPoolSize:  numCPU * 4,

		MaxMessagesPerSecond: 200,
		MessageBurst:         50,
		MaxClients:           1000,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,
		SpawnQueueBuffer:       16,

		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
		RedisPoolSize:  2,

		MaxMessagesPerSecond: 5,
		MessageBurst:         2,
		MaxClients:           20,
	}
}

// ForProfile returns the settings for a named profile. An empty name means default.
func ForProfile(name string) (*Config, error) {
	switch name {
	case "", ProfileDefault:
		return DefaultConfig(), nil
	case ProfileStressTest:
		return StressTestConfig(), nil
	case ProfileLowResource:
		return LowResourceConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	LowerTickRate           bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	// More than a tenth of frames blowing their budget means the rate is too high.
	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		count, _ := tick["count"].(int64)
		overruns, _ := tick["overruns"].(int64)
		if count > 0 && overruns*10 > count {
			rec.LowerTickRate = true
			rec.Notes = append(rec.Notes, "More than 10% of ticks overran their frame budget - lower tick_rate")
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write latency exceeds 50ms - increase DB connections")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write errors detected - check the database")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if dropped, ok := ws["dropped"].(int64); ok && dropped > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "Slow WebSocket clients were dropped - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *Config, rec *Recommendations) *Config {
	if rec.IncreaseBroadcastBuffer {
		config.BroadcastChannelBuffer *= 2
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	return config
}
