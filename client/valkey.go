package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyRegistry stores clients as JSON in Valkey, one key per client plus
// an index key per allowed origin for the CORS preflight lookup.
type ValkeyRegistry struct {
	vk valkey.Client
}

func NewValkeyRegistry(option valkey.ClientOption) (*ValkeyRegistry, error) {
	vk, err := valkey.NewClient(option)
	if err != nil {
		return nil, err
	}
	return &ValkeyRegistry{vk: vk}, nil
}

func clientKey(clientID string) string {
	return "client:" + clientID
}

func originKey(origin string) string {
	return "client-origin:" + origin
}

func (r *ValkeyRegistry) GetClient(clientID string) (*Client, error) {
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Get().Key(clientKey(clientID)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotFound, clientID)
		}
		return nil, fmt.Errorf("get client from valkey: %w", err)
	}
	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("get client from valkey: %w", err)
	}
	client := new(Client)
	if err := json.Unmarshal(data, client); err != nil {
		return nil, fmt.Errorf("unmarshal client '%s': %w", clientID, err)
	}
	return client, nil
}

func (r *ValkeyRegistry) FindByOrigin(origin string) (*Client, error) {
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Get().Key(originKey(origin)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("%w: no client allows origin '%s'", ErrNotFound, origin)
		}
		return nil, fmt.Errorf("get origin index from valkey: %w", err)
	}
	clientID, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("get origin index from valkey: %w", err)
	}
	return r.GetClient(clientID)
}

func (r *ValkeyRegistry) RegisterClient(client *Client) error {
	ctx := context.Background()
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("marshal client '%s': %w", client.ID, err)
	}
	if err := r.vk.Do(ctx, r.vk.B().Set().Key(clientKey(client.ID)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("store client in valkey: %w", err)
	}
	for _, origin := range client.AllowedOrigins {
		if err := r.vk.Do(ctx, r.vk.B().Set().Key(originKey(origin)).Value(client.ID).Build()).Error(); err != nil {
			return fmt.Errorf("store origin index in valkey: %w", err)
		}
	}
	return nil
}
