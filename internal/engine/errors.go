package engine

import "errors"

// Protocol errors, reported to the client and counted (spec.md §7).
var (
	ErrInvalidInfoHash     = errors.New("engine: invalid info_hash length")
	ErrInvalidPeerID       = errors.New("engine: invalid peer_id length")
	ErrInvalidPort         = errors.New("engine: invalid port")
	ErrInvalidEvent        = errors.New("engine: invalid event")
	ErrScrapeTooLarge      = errors.New("engine: scrape too large")
	ErrExpiredConnectionID = errors.New("engine: connection_id expired")
)

// Policy errors, reported to the client as tracker failures and counted.
var (
	ErrNotWhitelisted = errors.New("engine: not whitelisted")
	ErrBlacklisted    = errors.New("engine: blacklisted")
	ErrUnauthorizedKey = errors.New("engine: unauthorized key")
	ErrUnknownUser    = errors.New("engine: unknown user")
)
