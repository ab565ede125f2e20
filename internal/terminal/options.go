package terminal

import "time"

// Options configures the session and its host connection.
type Options struct {
	Host              string
	Port              int
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	WriteTimeout      time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	MaxFrameBytes     int
	KeepAliveInterval time.Duration
	KeepAliveMTI      string
	MaxTransactions   int
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout:    10 * time.Second,
		DisconnectTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectAttempts: 3,
		MaxFrameBytes:     8 * 1024,
		KeepAliveMTI:      "0800",
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.DisconnectTimeout <= 0 {
		o.DisconnectTimeout = def.DisconnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = def.ReconnectAttempts
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = def.MaxFrameBytes
	}
	if o.KeepAliveMTI == "" {
		o.KeepAliveMTI = def.KeepAliveMTI
	}
	return o
}
