package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyRepository persists tokens in Valkey. The identifier uniqueness
// constraint is enforced with SET NX; authorization code consumption is
// atomic via GETDEL. Entity keys expire with the token so the store cleans
// itself up.
type ValkeyRepository struct {
	vk valkey.Client
}

func NewValkeyRepository(option valkey.ClientOption) (*ValkeyRepository, error) {
	vk, err := valkey.NewClient(option)
	if err != nil {
		return nil, err
	}
	return &ValkeyRepository{vk: vk}, nil
}

const (
	authCodeKeyPrefix     = "authcode:"
	accessTokenKeyPrefix  = "access-token:"
	refreshTokenKeyPrefix = "refresh-token:"
	descendantsKeyPrefix  = "authcode-descendants:"
)

func (r *ValkeyRepository) persistNew(key string, entity any, expiresAt time.Time) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired at persist time")
	}
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Set().Key(key).Value(string(data)).Nx().Ex(ttl).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("store token in valkey: %w", err)
	}
	return nil
}

func (r *ValkeyRepository) get(key string, entity any) error {
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get token from valkey: %w", err)
	}
	data, err := resp.AsBytes()
	if err != nil {
		return fmt.Errorf("get token from valkey: %w", err)
	}
	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("unmarshal token: %w", err)
	}
	return nil
}

// overwrite replaces an existing entity, keeping its TTL. Used for the
// monotonic revoked flag.
func (r *ValkeyRepository) overwrite(key string, entity any) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Set().Key(key).Value(string(data)).Xx().Keepttl().Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update token in valkey: %w", err)
	}
	return nil
}

func (r *ValkeyRepository) PersistAuthorizationCode(code *AuthorizationCode) error {
	return r.persistNew(authCodeKeyPrefix+code.Identifier, code, code.ExpiresAt)
}

func (r *ValkeyRepository) ConsumeAuthorizationCode(identifier string) (*AuthorizationCode, error) {
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Getdel().Key(authCodeKeyPrefix+identifier).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	code := new(AuthorizationCode)
	if err := json.Unmarshal(data, code); err != nil {
		return nil, fmt.Errorf("unmarshal authorization code: %w", err)
	}
	return code, nil
}

func (r *ValkeyRepository) PersistAccessToken(token *AccessToken) error {
	if err := r.persistNew(accessTokenKeyPrefix+token.Identifier, token, token.ExpiresAt); err != nil {
		return err
	}
	return r.indexDescendant(token.AuthCodeID, accessTokenKeyPrefix+token.Identifier, token.ExpiresAt)
}

func (r *ValkeyRepository) GetAccessToken(identifier string) (*AccessToken, error) {
	token := new(AccessToken)
	if err := r.get(accessTokenKeyPrefix+identifier, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *ValkeyRepository) RevokeAccessToken(identifier string) error {
	token, err := r.GetAccessToken(identifier)
	if err != nil {
		return err
	}
	if token.Revoked {
		return nil
	}
	token.Revoked = true
	return r.overwrite(accessTokenKeyPrefix+identifier, token)
}

func (r *ValkeyRepository) PersistRefreshToken(token *RefreshToken) error {
	if err := r.persistNew(refreshTokenKeyPrefix+token.Identifier, token, token.ExpiresAt); err != nil {
		return err
	}
	return r.indexDescendant(token.AuthCodeID, refreshTokenKeyPrefix+token.Identifier, token.ExpiresAt)
}

func (r *ValkeyRepository) GetRefreshToken(identifier string) (*RefreshToken, error) {
	token := new(RefreshToken)
	if err := r.get(refreshTokenKeyPrefix+identifier, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *ValkeyRepository) RevokeRefreshToken(identifier string) error {
	token, err := r.GetRefreshToken(identifier)
	if err != nil {
		return err
	}
	if token.Revoked {
		return nil
	}
	token.Revoked = true
	return r.overwrite(refreshTokenKeyPrefix+identifier, token)
}

// indexDescendant records the token under its originating authorization
// code so RevokeDescendants can find it later.
func (r *ValkeyRepository) indexDescendant(authCodeID, tokenKey string, expiresAt time.Time) error {
	if authCodeID == "" {
		return nil
	}
	ctx := context.Background()
	key := descendantsKeyPrefix + authCodeID
	if err := r.vk.Do(ctx, r.vk.B().Sadd().Key(key).Member(tokenKey).Build()).Error(); err != nil {
		return fmt.Errorf("index descendant token: %w", err)
	}
	// extend the index at least to the longest-lived member
	ttl := time.Until(expiresAt)
	if ttl > 0 {
		if err := r.vk.Do(ctx, r.vk.B().Expire().Key(key).Seconds(int64(ttl.Seconds())+1).Gt().Build()).Error(); err != nil {
			return fmt.Errorf("expire descendant index: %w", err)
		}
	}
	return nil
}

func (r *ValkeyRepository) RevokeDescendants(authCodeID string) error {
	ctx := context.Background()
	resp := r.vk.Do(ctx, r.vk.B().Smembers().Key(descendantsKeyPrefix+authCodeID).Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("list descendant tokens: %w", err)
	}
	members, err := resp.AsStrSlice()
	if err != nil {
		return fmt.Errorf("list descendant tokens: %w", err)
	}
	for _, member := range members {
		switch {
		case len(member) > len(accessTokenKeyPrefix) && member[:len(accessTokenKeyPrefix)] == accessTokenKeyPrefix:
			if err := r.RevokeAccessToken(member[len(accessTokenKeyPrefix):]); err != nil && err != ErrNotFound {
				return err
			}
		case len(member) > len(refreshTokenKeyPrefix) && member[:len(refreshTokenKeyPrefix)] == refreshTokenKeyPrefix:
			if err := r.RevokeRefreshToken(member[len(refreshTokenKeyPrefix):]); err != nil && err != ErrNotFound {
				return err
			}
		}
	}
	return nil
}
