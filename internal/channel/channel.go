package channel

import (
	"context"
	"fmt"

	"github.com/agencycrm/notify-engine/internal/domain"
)

// Message is the channel-agnostic send request. Channel clients read only the
// fields their transport understands.
type Message struct {
	Recipient string
	Body      string

	// Email only.
	Subject string
	CC      []string
	BCC     []string

	// WhatsApp only: local path of a file to upload with the message.
	AttachmentPath string

	// Push only.
	Title string
	Data  map[string]string
}

// Client delivers one message over a single channel. Expected provider
// rejections come back as a failure outcome, never as a Go error; clients do
// not retry internally so attempt counting stays with the dispatcher.
type Client interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg Message) domain.DeliveryOutcome
}

// Registry selects the client for a channel.
type Registry struct {
	clients map[domain.Channel]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[domain.Channel]Client, len(clients))}
	for _, c := range clients {
		if c != nil {
			r.clients[c.Channel()] = c
		}
	}
	return r
}

func (r *Registry) Client(ch domain.Channel) (Client, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is not initialized")
	}
	client, ok := r.clients[ch]
	if !ok {
		return nil, fmt.Errorf("%w: no client registered for channel %q", domain.ErrValidation, ch)
	}
	return client, nil
}

// Channels returns the channels with a registered client.
func (r *Registry) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(r.clients))
	for _, ch := range domain.Channels() {
		if _, ok := r.clients[ch]; ok {
			channels = append(channels, ch)
		}
	}
	return channels
}
