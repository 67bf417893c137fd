package notify

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/netx"
)

type webhookMessenger struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

type webhookPayload struct {
	ID         string             `json:"id"`
	Sub        string             `json:"sub"`
	Data       map[string]any     `json:"data,omitempty"`
	Messengers []webhookMessenger `json:"messengers,omitempty"`
	Types      []string           `json:"types,omitempty"`
}

// Webhook hands every trigger to an external delivery service as a JSON
// POST. The service renders the template and picks the channel.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns a Webhook posting to url. A nil client uses
// http.DefaultClient.
func NewWebhook(url string, client *http.Client) *Webhook {
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Trigger(ctx context.Context, id, sub string, data map[string]any, opts Options) error {
	p := webhookPayload{ID: id, Sub: sub, Data: data, Types: opts.Types}
	for _, m := range opts.Messengers {
		p.Messengers = append(p.Messengers, webhookMessenger(m))
	}
	return netx.PostJSON(ctx, w.client, w.url, p)
}
