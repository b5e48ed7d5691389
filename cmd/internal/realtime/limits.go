package realtime

import "time"

// Transport limits and defaults.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	wsSubprotocolV1 = "jobwire.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout     = 5 * time.Second
	wsDefaultReadIdle         = 2 * time.Minute
	wsDefaultDialTimeout      = 10 * time.Second
	wsDefaultHandshakeTimeout = 10 * time.Second

	wsMaxPingFailures = 3
)

const (
	// Heartbeat defaults.
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Reconnection defaults: bounded attempts with a fixed delay.
	reconnectDelay       = 2 * time.Second
	reconnectMaxAttempts = 5
	reconnectMaxDelay    = 30 * time.Second
)
