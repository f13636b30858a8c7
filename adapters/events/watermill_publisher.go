package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/verisafe/ports"
)

const (
	WalletTopic       = "verisafe.wallet"
	VerificationTopic = "verisafe.verification"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishWallet publishes a wallet connect/disconnect event
func (p *WatermillPublisher) PublishWallet(ctx context.Context, event ports.WalletEvent) error {
	return p.publish(ctx, WalletTopic, event)
}

// PublishVerification publishes the terminal state of a verification attempt
func (p *WatermillPublisher) PublishVerification(ctx context.Context, event ports.VerificationEvent) error {
	return p.publish(ctx, VerificationTopic, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishWallet(context.Context, ports.WalletEvent) error { return nil }

func (NopPublisher) PublishVerification(context.Context, ports.VerificationEvent) error { return nil }
