/**
 * @description
 * This package provides a read-only client for the service-requests service.
 * The checkout flow uses it to verify that the service request linked to a work
 * order belongs to the paying owner.
 */
package servicerequestsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the service requests service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new service requests client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ServiceRequest is the subset of a service request the payment flow needs.
type ServiceRequest struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Status  string `json:"status"`
}

// GetServiceRequest fetches a service request by id.
func (c *Client) GetServiceRequest(ctx context.Context, serviceRequestID int64) (*ServiceRequest, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("service requests base url is empty")
	}

	url := fmt.Sprintf("%s/internal/service-requests/%d", c.baseURL, serviceRequestID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to service requests service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("service requests service returned error status %d", resp.StatusCode)
	}

	var request ServiceRequest
	if err := json.NewDecoder(resp.Body).Decode(&request); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &request, nil
}
