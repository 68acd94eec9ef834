/**
 * @description
 * This package provides a client for communicating with the profiles-service.
 * It encapsulates the internal API calls the settlement flows need: resolving
 * owner and provider profiles from a platform user id, moving a profile onto a
 * new subscription plan, crediting a provider's earnings balance, and looking
 * up provider contact details for notifications.
 */
package profilesclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a client for the profiles service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new profiles service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type profileIDResponse struct {
	ID int64 `json:"id"`
}

// ProviderContact carries what a payment notification needs about a provider.
type ProviderContact struct {
	UserID      int64  `json:"user_id"`
	CompanyName string `json:"company_name"`
}

// GetOwnerIDByUserID resolves the owner profile id for a platform user. The
// boolean reports whether the user has an owner profile at all; a missing
// profile is not an error.
func (c *Client) GetOwnerIDByUserID(ctx context.Context, userID int64) (int64, bool, error) {
	return c.getProfileID(ctx, fmt.Sprintf("%s/internal/owners/by-user/%d", c.baseURL, userID))
}

// GetProviderIDByUserID resolves the provider profile id for a platform user.
func (c *Client) GetProviderIDByUserID(ctx context.Context, userID int64) (int64, bool, error) {
	return c.getProfileID(ctx, fmt.Sprintf("%s/internal/providers/by-user/%d", c.baseURL, userID))
}

func (c *Client) getProfileID(ctx context.Context, url string) (int64, bool, error) {
	if c.baseURL == "" {
		return 0, false, fmt.Errorf("profiles service base url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("failed to execute request to profiles service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode >= 400 {
		return 0, false, fmt.Errorf("profiles service returned error status %d", resp.StatusCode)
	}

	var response profileIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, false, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.ID, true, nil
}

// UpdateOwnerPlan moves an owner profile onto a new subscription plan.
func (c *Client) UpdateOwnerPlan(ctx context.Context, ownerID, planID int64) error {
	url := fmt.Sprintf("%s/internal/owners/%d/plan", c.baseURL, ownerID)
	return c.putJSON(ctx, url, map[string]int64{"plan_id": planID})
}

// UpdateProviderPlan moves a provider profile onto a new subscription plan.
func (c *Client) UpdateProviderPlan(ctx context.Context, providerID, planID int64) error {
	url := fmt.Sprintf("%s/internal/providers/%d/plan", c.baseURL, providerID)
	return c.putJSON(ctx, url, map[string]int64{"plan_id": planID})
}

// CreditProviderBalance adds a settled service payment's provider share to the
// provider's earnings balance.
func (c *Client) CreditProviderBalance(ctx context.Context, providerID int64, amount decimal.Decimal) error {
	url := fmt.Sprintf("%s/internal/providers/%d/balance/credits", c.baseURL, providerID)
	return c.postJSON(ctx, url, map[string]string{"amount": amount.StringFixed(2)})
}

// GetProviderContact returns the provider's platform user id and company name.
func (c *Client) GetProviderContact(ctx context.Context, providerID int64) (*ProviderContact, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("profiles service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/providers/%d/contact", c.baseURL, providerID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to profiles service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("profiles service returned error status %d", resp.StatusCode)
	}

	var contact ProviderContact
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &contact, nil
}

func (c *Client) putJSON(ctx context.Context, url string, payload interface{}) error {
	return c.sendJSON(ctx, "PUT", url, payload)
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}) error {
	return c.sendJSON(ctx, "POST", url, payload)
}

func (c *Client) sendJSON(ctx context.Context, method, url string, payload interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("profiles service base url is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to profiles service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("profiles service returned error status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}
}
