package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishWallet(ctx context.Context, event WalletEvent) error
	PublishVerification(ctx context.Context, event VerificationEvent) error
}

// WalletEvent is emitted when a wallet connects or disconnects.
type WalletEvent struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	ChainID uint64 `json:"chain_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// VerificationEvent is emitted when an attempt reaches a terminal stage.
type VerificationEvent struct {
	AttemptID string `json:"attempt_id"`
	Address   string `json:"address"`
	Stage     string `json:"stage"`
	TxHash    string `json:"tx_hash,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Qualified *bool  `json:"qualified,omitempty"`
	Error     string `json:"error,omitempty"`
}
