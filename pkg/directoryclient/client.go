/**
 * @description
 * This package provides a read-only client for the property/user directory
 * service. The lifecycle core only needs it to snapshot contract terms at
 * approval time and to verify property ownership; all property CRUD lives in
 * the directory service.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/google/uuid: For entity ids.
 */
package directoryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the directory service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new directory client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Property is the subset of a property listing the lifecycle core cares
// about: ownership for authorization and display fields for the contract
// snapshot.
type Property struct {
	ID         uuid.UUID `json:"id"`
	LandlordID uuid.UUID `json:"landlord_id"`
	Title      string    `json:"title"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	RentDueDay int       `json:"rent_due_day"`
}

// User is a simplified directory view of a user.
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("directory entity not found: %s", path)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("directory api returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetProperty fetches one property by id.
func (c *Client) GetProperty(ctx context.Context, id uuid.UUID) (*Property, error) {
	var out struct {
		Data Property `json:"data"`
	}
	if err := c.get(ctx, "/v1/properties/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetUser fetches one user by id.
func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.get(ctx, "/v1/users/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}
