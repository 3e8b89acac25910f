package config

import "time"

const (
	probeTimeoutVar      = "PROBE_TIMEOUT"
	probeIntervalVar     = "PROBE_INTERVAL"
	reconnectDebounceVar = "RECONNECT_DEBOUNCE"
	replayRateVar        = "REPLAY_RATE"
)

type Sync struct{}

var _ SyncConfig = Sync{}

func (Sync) GetProbeTimeout() time.Duration {
	return GetEnvDuration(probeTimeoutVar, 3*time.Second)
}

func (Sync) GetProbeInterval() time.Duration {
	return GetEnvDuration(probeIntervalVar, 30*time.Second)
}

// GetReconnectDebounce is the window in which network flapping collapses into one reconnect.
func (Sync) GetReconnectDebounce() time.Duration {
	return GetEnvDuration(reconnectDebounceVar, 1500*time.Millisecond)
}

// GetReplayRate is the number of queued writes sent per second while replaying.
func (Sync) GetReplayRate() float64 {
	return GetEnvFloat(replayRateVar, 5)
}
