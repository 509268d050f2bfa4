package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Action is a logical operation on image assets. The set is closed; routes
// bind one of these at registration time.
type Action string

// Actions understood by the policy service.
const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionUpload Action = "upload"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionUpdate, ActionDelete, ActionUpload:
		return true
	}
	return false
}

// Grant describes which permission satisfies an action for an identity:
// either the identity owns the whole project, or a role / permission id
// that an ACL row on the resource must match.
type Grant struct {
	IsProjectOwner bool       `json:"is_project_owner"`
	RoleID         *uuid.UUID `json:"role_id"`
	PermissionID   *uuid.UUID `json:"permission_id"`
}

// PolicyClient asks the auth service which grant satisfies an action on the
// image resource class for a given identity.
type PolicyClient struct {
	client  *http.Client
	baseURL string
}

// NewPolicyClient creates a PolicyClient targeting the auth service base URL.
func NewPolicyClient(client *http.Client, baseURL string) *PolicyClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &PolicyClient{client: client, baseURL: baseURL}
}

// Grant fetches the grant context for (claims, action). Any transport,
// status, or decode failure wraps ErrInfrastructure: the caller must treat
// it as a denial, not as an evaluated "no".
func (p *PolicyClient) Grant(ctx context.Context, claims *Claims, action Action) (*Grant, error) {
	url := fmt.Sprintf("%s/auth/permission/%s_images", p.baseURL, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build permission request: %w", err)
	}
	req.Header.Set("user-id", claims.UserID.String())
	req.Header.Set("project-id", claims.ProjectID.String())

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("permission lookup: %v: %w", err, ErrInfrastructure)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("permission lookup returned %d: %w", res.StatusCode, ErrInfrastructure)
	}

	var grant Grant
	if err := json.NewDecoder(res.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("decode permission response: %v: %w", err, ErrInfrastructure)
	}

	return &grant, nil
}
