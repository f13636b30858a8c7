package core

import "time"

// Session represents a connected wallet session handed out to API clients
type Session struct {
	ID        string    // Unique session identifier
	Address   string    // Checksummed address of the connected account
	ChainID   uint64    // Chain the wallet was on when the session was issued
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session token expires
}
