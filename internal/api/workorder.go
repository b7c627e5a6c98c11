package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/nacl/box"

	"github.com/dmitrijs2005/genofetch/internal/common"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

// tokenSafetyMargin is subtracted from a token's expiry so a cached token is
// never presented moments before it lapses.
const tokenSafetyMargin = 30 * time.Second

// fallbackTokenLifetime bounds how long a token without a readable exp claim
// is reused.
const fallbackTokenLifetime = 30 * time.Second

// WorkPackageAccessor obtains per-file work-order tokens from the work
// package service. Tokens arrive sealed to the user's Crypt4GH key pair and
// are cached until shortly before expiry.
type WorkPackageAccessor struct {
	client      *Client
	baseURL     string
	packageID   string
	accessToken string
	publicKey   [32]byte
	privateKey  [32]byte
	log         logging.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewWorkPackageAccessor builds an accessor for one work package. accessToken
// authenticates against the work package service itself; the key pair opens
// the sealed tokens it returns.
func NewWorkPackageAccessor(client *Client, baseURL, packageID, accessToken string,
	publicKey, privateKey [32]byte, log logging.Logger) *WorkPackageAccessor {
	return &WorkPackageAccessor{
		client:      client,
		baseURL:     baseURL,
		packageID:   packageID,
		accessToken: accessToken,
		publicKey:   publicKey,
		privateKey:  privateKey,
		log:         log,
		tokens:      make(map[string]cachedToken),
		now:         time.Now,
	}
}

// WorkOrderToken returns a valid work-order token for fileID, fetching a
// fresh one when no cached token is live.
func (a *WorkPackageAccessor) WorkOrderToken(ctx context.Context, fileID string) (string, error) {
	a.mu.Lock()
	if ct, ok := a.tokens[fileID]; ok && a.now().Before(ct.expiresAt) {
		a.mu.Unlock()
		return ct.token, nil
	}
	a.mu.Unlock()

	token, err := a.fetch(ctx, fileID)
	if err != nil {
		return "", err
	}

	expiresAt := a.now().Add(fallbackTokenLifetime)
	if exp, ok := tokenExpiry(token); ok {
		expiresAt = exp.Add(-tokenSafetyMargin)
	}

	a.mu.Lock()
	a.tokens[fileID] = cachedToken{token: token, expiresAt: expiresAt}
	a.mu.Unlock()

	if a.log != nil {
		a.log.Debug(ctx, "obtained work-order token", "file_id", fileID, "expires_at", expiresAt)
	}
	return token, nil
}

func (a *WorkPackageAccessor) fetch(ctx context.Context, fileID string) (string, error) {
	u := fmt.Sprintf("%s/work-packages/%s/files/%s/work-order-tokens",
		a.baseURL, a.packageID, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fetch work-order token for %s: %w", fileID, err)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("%w: work package %s rejected the access token", common.ErrUnauthorized, a.packageID)
	default:
		return "", badStatus(resp)
	}

	// The body is a JSON string holding the base64 of a sealed box.
	var encoded string
	if err := json.NewDecoder(resp.Body).Decode(&encoded); err != nil {
		return "", fmt.Errorf("decode work-order token response: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode work-order token: %w", err)
	}

	token, ok := box.OpenAnonymous(nil, sealed, &a.publicKey, &a.privateKey)
	if !ok {
		return "", fmt.Errorf("%w: work-order token is not sealed to this key pair", common.ErrNoMatchingKey)
	}
	return string(token), nil
}

// tokenExpiry peeks at the JWT exp claim without verifying the signature;
// signature verification is the receiving service's job, the client only
// needs the expiry for cache bookkeeping.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
