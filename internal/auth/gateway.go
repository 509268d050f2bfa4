// Package auth talks to the remote auth service: it exchanges session tokens
// for verified identity claims and resolves which grant satisfies an action.
// Tokens are opaque to this service; validity is decided remotely.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Credentials are the two session values carried per request. Absent cookies
// are forwarded as empty strings, never omitted — the auth service decides
// what an empty token means.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// CredentialsFromRequest reads the "access" and "refresh" cookies.
func CredentialsFromRequest(r *http.Request) Credentials {
	var creds Credentials
	if c, err := r.Cookie("access"); err == nil {
		creds.Access = c.Value
	}
	if c, err := r.Cookie("refresh"); err == nil {
		creds.Refresh = c.Value
	}
	return creds
}

// Claims are the verified identity attributes for the current request.
// They live for the request only and are never persisted.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	ProjectID uuid.UUID `json:"project_id"`
}

type verifyResponse struct {
	Claims *Claims `json:"claims"`
}

// Gateway verifies session credentials against the remote auth service.
type Gateway struct {
	client  *http.Client
	baseURL string
}

// NewGateway creates a Gateway targeting the given auth service base URL.
func NewGateway(client *http.Client, baseURL string) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{client: client, baseURL: baseURL}
}

// Verify exchanges credentials for claims with exactly one round trip.
// A non-200 response or an undecodable body is ErrUnauthorized; not reaching
// the auth service at all is ErrInfrastructure, never a verdict on the
// credentials. A 200 with null claims returns (nil, nil): the caller treats
// missing claims as a denial, same as a failed verification.
func (g *Gateway) Verify(ctx context.Context, creds Credentials) (*Claims, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify call: %v: %w", err, ErrInfrastructure)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned %d: %w", res.StatusCode, ErrUnauthorized)
	}

	var payload verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", ErrUnauthorized)
	}

	return payload.Claims, nil
}
