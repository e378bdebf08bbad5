// Package logx carries pslog helpers that bind conversation identifiers to
// loggers consistently across the engine.
package logx

import (
	"pkt.systems/inlined/schema"
	"pkt.systems/pslog"
)

// WithTab annotates the logger with the conversation id if present.
func WithTab(log pslog.Logger, tab schema.TabID) pslog.Logger {
	if tab != "" {
		log = log.With("tab", tab)
	}
	return log
}

// WithTabToken annotates the logger with conversation and token identifiers.
func WithTabToken(log pslog.Logger, tab schema.TabID, token schema.Token) pslog.Logger {
	log = WithTab(log, tab)
	if token != "" {
		log = log.With("token", token)
	}
	return log
}

// WithRequest annotates the logger with a request id when available.
func WithRequest(log pslog.Logger, id schema.RequestID) pslog.Logger {
	if id != "" {
		log = log.With("request", id)
	}
	return log
}
