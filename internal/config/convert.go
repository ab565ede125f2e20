package config

import "github.com/danmuck/signalctl/internal/terminal"

// TerminalOptions maps the document onto terminal session options.
func (c Config) TerminalOptions() terminal.Options {
	return terminal.Options{
		Host:              c.Host.Host,
		Port:              c.Host.Port,
		ConnectTimeout:    c.Transport.ConnectTimeout.Duration,
		DisconnectTimeout: c.Transport.DisconnectTimeout.Duration,
		WriteTimeout:      c.Transport.WriteTimeout.Duration,
		ReconnectAttempts: c.Transport.ReconnectAttempts,
		ReconnectBackoff:  c.Transport.ReconnectBackoff.Duration,
		MaxFrameBytes:     c.Transport.MaxFrameBytes,
		KeepAliveInterval: c.Transport.KeepAliveInterval.Duration,
		KeepAliveMTI:      c.Transport.KeepAliveMTI,
		MaxTransactions:   c.Transport.MaxTransactions,
	}
}
