/**
 * @description
 * This package provides a client for the on-chain vault watcher API. The
 * vault contract itself is an external collaborator; this client only asks
 * the watcher what happened to a transaction hash and requests withdrawal
 * submissions. It never blocks a database lock: callers query first, then
 * apply local state.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package vaultclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// On-chain transaction statuses reported by the watcher.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Client is a client for the vault watcher API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new vault watcher client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TxStatusResponse is the watcher's answer for a transaction hash.
type TxStatusResponse struct {
	Data struct {
		Hash          string `json:"hash"`
		Status        string `json:"status"`
		Confirmations int    `json:"confirmations"`
		BlockNumber   *int64 `json:"block_number,omitempty"`
	} `json:"data"`
}

// WithdrawalResponse is returned when the vault accepts a withdrawal request.
type WithdrawalResponse struct {
	Data struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
	} `json:"data"`
}

// ErrorResponse represents an error from the vault watcher API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("vault api error: %s (%s)", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown vault api error"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr != nil || len(apiErr.Errors) == 0 {
			return fmt.Errorf("vault api returned status %d", resp.StatusCode)
		}
		return &apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode vault response: %w", err)
		}
	}
	return nil
}

// GetTxStatus asks the watcher for the current status of an on-chain hash.
func (c *Client) GetTxStatus(ctx context.Context, hash string) (*TxStatusResponse, error) {
	var out TxStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+hash, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitWithdrawal asks the vault to send funds to the given address. The
// returned hash is recorded on the pending withdraw transaction and polled by
// the reconciler like any other on-chain movement.
func (c *Client) SubmitWithdrawal(ctx context.Context, toAddress string, amount int64) (*WithdrawalResponse, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "withdrawal",
			"attributes": map[string]any{
				"to_address": toAddress,
				"amount":     amount,
			},
		},
	}
	var out WithdrawalResponse
	if err := c.do(ctx, http.MethodPost, "/v1/withdrawals", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
