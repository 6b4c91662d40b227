package backchannel

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/segmentio/ksuid"
)

// LogoutEventClaim marks a logout token per the OIDC back-channel logout
// specification.
const LogoutEventClaim = "http://schemas.openid.net/event/backchannel-logout"

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 5 * time.Second
)

type HandlerConfig struct {
	// Issuer is the iss claim of the logout tokens.
	Issuer      string
	SignKey     jwk.Key
	Store       AssociationStore
	Concurrency int
	Timeout     time.Duration
	// InsecureSkipTLSVerify disables certificate checks on outbound logout
	// requests. Deployment-specific; off unless explicitly configured.
	InsecureSkipTLSVerify bool
	Logger                *slog.Logger
}

// Handler fans a session-ended notification out to the relying parties of
// that session. Logout is best effort by protocol design: each outcome is
// logged independently and no per-request error reaches the caller.
type Handler struct {
	issuer      string
	signKey     jwk.Key
	store       AssociationStore
	concurrency int
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer URI is required")
	}
	if cfg.SignKey == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("association store is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipTLSVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Handler{
		issuer:      cfg.Issuer,
		signKey:     cfg.SignKey,
		store:       cfg.Store,
		concurrency: cfg.Concurrency,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: cfg.Logger,
	}, nil
}

// NotifySessionEnded notifies every relying party of the session that
// registered a back-channel logout URI, with bounded concurrency, and
// discards the associations afterwards. It waits for all notifications to
// complete. Failures are logged, never returned.
func (h *Handler) NotifySessionEnded(ctx context.Context, sessionID string) {
	associations, err := h.store.AssociationsBySession(sessionID)
	if err != nil {
		h.logger.Error("unable to load relying party associations", "session_id", sessionID, "error", err)
		return
	}

	sem := make(chan struct{}, h.concurrency)
	var wg sync.WaitGroup
	for _, a := range associations {
		if a.BackChannelLogoutURI == "" {
			continue
		}
		wg.Add(1)
		go func(a *Association) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := h.notify(ctx, a); err != nil {
				h.logger.Error("back-channel logout notification failed", "client_id", a.ClientID, "uri", a.BackChannelLogoutURI, "error", err)
				return
			}
			h.logger.Info("back-channel logout notification delivered", "client_id", a.ClientID, "uri", a.BackChannelLogoutURI)
		}(a)
	}
	wg.Wait()

	if err := h.store.DeleteAssociationsBySession(sessionID); err != nil {
		h.logger.Error("unable to discard relying party associations", "session_id", sessionID, "error", err)
	}
}

func (h *Handler) notify(ctx context.Context, a *Association) error {
	logoutToken, err := h.signLogoutToken(a)
	if err != nil {
		return fmt.Errorf("sign logout token: %w", err)
	}

	form := url.Values{}
	form.Set("logout_token", logoutToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BackChannelLogoutURI, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("relying party answered %d", resp.StatusCode)
	}
	return nil
}

func (h *Handler) signLogoutToken(a *Association) (string, error) {
	logoutJwt := jwt.New()
	logoutJwt.Set(jwt.IssuerKey, h.issuer)
	logoutJwt.Set(jwt.AudienceKey, a.ClientID)
	logoutJwt.Set(jwt.SubjectKey, a.UserID)
	logoutJwt.Set(jwt.IssuedAtKey, time.Now())
	logoutJwt.Set(jwt.JwtIDKey, ksuid.New().String())
	logoutJwt.Set("events", map[string]any{LogoutEventClaim: map[string]any{}})
	if a.SessionID != "" {
		logoutJwt.Set("sid", a.SessionID)
	}

	signed, err := jwt.Sign(logoutJwt, jwt.WithKey(jwa.ES256, h.signKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
