/**
 * @description
 * This package provides a read-only client for the work-orders-service. The
 * checkout flow uses it to load a work order and check it is in a payable state
 * before any payment record is created.
 */
package workordersclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the work orders service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new work orders service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WorkOrder is the subset of a work order the payment flow needs.
type WorkOrder struct {
	ID               int64  `json:"id"`
	ServiceRequestID int64  `json:"service_request_id"`
	OwnerID          int64  `json:"owner_id"`
	ProviderID       int64  `json:"provider_id"`
	Status           string `json:"status"`
	Cost             string `json:"cost"`
	Description      string `json:"description"`
}

// GetWorkOrder fetches a work order by id.
func (c *Client) GetWorkOrder(ctx context.Context, workOrderID int64) (*WorkOrder, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("work orders service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/work-orders/%d", c.baseURL, workOrderID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to work orders service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("work orders service returned error status %d", resp.StatusCode)
	}

	var order WorkOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &order, nil
}
