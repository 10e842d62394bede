package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

// TokenConfig carries the signing secrets and lifetimes of both token kinds.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// TokenPair is what register, sign-in and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer mints access/refresh pairs and records every refresh token
// in the ledger.
type TokenIssuer struct {
	cfg    TokenConfig
	ledger repository.TokenStore
	now    func() time.Time
}

func NewTokenIssuer(cfg TokenConfig, ledger repository.TokenStore) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, ledger: ledger, now: time.Now}
}

// Issue signs both tokens for userID and stores the refresh token digest
// with the same expiry that is written into its exp claim. A ledger error
// is returned as is; no pair is handed out without its ledger entry.
func (i *TokenIssuer) Issue(ctx context.Context, userID string, role model.Role) (TokenPair, error) {
	now := i.now().UTC().Truncate(time.Second)

	access, err := utils.NewAccessToken(i.cfg.AccessSecret, userID, role, now, now.Add(i.cfg.AccessTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(i.cfg.RefreshSecret, userID, role, now, now.Add(i.cfg.RefreshTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	entry := &model.RefreshToken{
		TokenHash: utils.HashToken(refresh.Raw),
		UserID:    userID,
		ExpiresAt: refresh.Exp,
	}
	if err := i.ledger.Store(ctx, entry); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh.Raw}, nil
}

// VerifyAccess checks an access token against the access secret only; the
// ledger is never consulted.
func (i *TokenIssuer) VerifyAccess(raw string) (utils.AccessClaims, error) {
	return utils.ParseAccessToken(i.cfg.AccessSecret, raw)
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (i *TokenIssuer) VerifyRefresh(raw string) (utils.RefreshClaims, error) {
	return utils.ParseRefreshToken(i.cfg.RefreshSecret, raw)
}
