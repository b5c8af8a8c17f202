// internal/client/cartclient/client.go
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/storefront-cart/internal/domain/cart"
)

// APIError is a non-2xx response from the cart service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the cart service
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the cart HTTP endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// "https://shop.example.com/api/v1". A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetCart fetches the cart for sessionID
func (c *Client) GetCart(ctx context.Context, sessionID string) (*cart.CartResponse, error) {
	return c.do(ctx, http.MethodGet, "/cart", sessionID, nil)
}

// AddItem adds an item to the cart
func (c *Client) AddItem(ctx context.Context, sessionID string, req cart.AddItemRequest) (*cart.CartResponse, error) {
	return c.do(ctx, http.MethodPost, "/cart/items", sessionID, req)
}

// RemoveItem removes every line for productID
func (c *Client) RemoveItem(ctx context.Context, sessionID string, productID int64) (*cart.CartResponse, error) {
	return c.do(ctx, http.MethodDelete, itemPath(productID), sessionID, nil)
}

// UpdateQuantity sets the quantity of a line
func (c *Client) UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int, attributes *string) (*cart.CartResponse, error) {
	body := cart.UpdateQuantityRequest{Quantity: &quantity, Attributes: attributes}
	return c.do(ctx, http.MethodPut, itemPath(productID), sessionID, body)
}

// ClearCart empties the cart
func (c *Client) ClearCart(ctx context.Context, sessionID string) (*cart.CartResponse, error) {
	return c.do(ctx, http.MethodDelete, "/cart", sessionID, nil)
}

func itemPath(productID int64) string {
	return "/cart/items/" + strconv.FormatInt(productID, 10)
}

func (c *Client) do(ctx context.Context, method, path, sessionID string, body any) (*cart.CartResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path + "?" + url.Values{"session_id": {sessionID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &errBody)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	var out cart.CartResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Items == nil {
		out.Items = []cart.LineItem{}
	}
	return &out, nil
}
