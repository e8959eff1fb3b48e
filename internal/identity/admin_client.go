package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AdminClient wraps the identity platform admin API.
type AdminClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewAdminClient constructs a new client.
func NewAdminClient(baseURL, serviceKey string) *AdminClient {
	return &AdminClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping checks if the identity platform is reachable.
func (c *AdminClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("identity platform returned status %d", resp.StatusCode)
	}
	return nil
}

type createIdentityRequest struct {
	Email      string   `json:"email"`
	SecretHash string   `json:"secret_hash"`
	Metadata   Metadata `json:"metadata"`
}

type createIdentityResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateIdentity registers a new authentication identity. The secret never
// leaves the process in clear text; the admin API accepts a bcrypt hash.
func (c *AdminClient) CreateIdentity(ctx context.Context, input NewIdentity) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Secret), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("identity: hash secret: %w", err)
	}

	body, err := json.Marshal(createIdentityRequest{
		Email:      input.Email,
		SecretHash: string(hash),
		Metadata:   input.Metadata,
	})
	if err != nil {
		return uuid.Nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/admin/identities", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return uuid.Nil, fmt.Errorf("identity: create failed with status %d", resp.StatusCode)
	}

	var created createIdentityResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return uuid.Nil, fmt.Errorf("identity: decode create response: %w", err)
	}
	if created.ID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("identity: platform returned empty id")
	}
	return created.ID, nil
}

var _ Creator = (*AdminClient)(nil)
