package token

import (
	"sync"
)

// MemoryRepository keeps all tokens in process memory. Suitable for tests
// and single-instance non-production deployments.
type MemoryRepository struct {
	lock          sync.Mutex
	codes         map[string]*AuthorizationCode
	accessTokens  map[string]*AccessToken
	refreshTokens map[string]*RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		codes:         make(map[string]*AuthorizationCode),
		accessTokens:  make(map[string]*AccessToken),
		refreshTokens: make(map[string]*RefreshToken),
	}
}

func (r *MemoryRepository) PersistAuthorizationCode(code *AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.codes[code.Identifier]; ok {
		return ErrDuplicateIdentifier
	}
	clone := *code
	r.codes[code.Identifier] = &clone
	return nil
}

// ConsumeAuthorizationCode removes and returns the code under a single
// lock, so exactly one concurrent redemption succeeds.
func (r *MemoryRepository) ConsumeAuthorizationCode(identifier string) (*AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	code, ok := r.codes[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.codes, identifier)
	clone := *code
	return &clone, nil
}

func (r *MemoryRepository) PersistAccessToken(token *AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.accessTokens[token.Identifier]; ok {
		return ErrDuplicateIdentifier
	}
	clone := *token
	r.accessTokens[token.Identifier] = &clone
	return nil
}

func (r *MemoryRepository) GetAccessToken(identifier string) (*AccessToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.accessTokens[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (r *MemoryRepository) RevokeAccessToken(identifier string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.accessTokens[identifier]
	if !ok {
		return ErrNotFound
	}
	token.Revoked = true
	return nil
}

func (r *MemoryRepository) PersistRefreshToken(token *RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.refreshTokens[token.Identifier]; ok {
		return ErrDuplicateIdentifier
	}
	clone := *token
	r.refreshTokens[token.Identifier] = &clone
	return nil
}

func (r *MemoryRepository) GetRefreshToken(identifier string) (*RefreshToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.refreshTokens[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (r *MemoryRepository) RevokeRefreshToken(identifier string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.refreshTokens[identifier]
	if !ok {
		return ErrNotFound
	}
	token.Revoked = true
	return nil
}

func (r *MemoryRepository) RevokeDescendants(authCodeID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, token := range r.accessTokens {
		if token.AuthCodeID == authCodeID {
			token.Revoked = true
		}
	}
	for _, token := range r.refreshTokens {
		if token.AuthCodeID == authCodeID {
			token.Revoked = true
		}
	}
	return nil
}
