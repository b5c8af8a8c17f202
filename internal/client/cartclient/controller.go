// internal/client/cartclient/controller.go
package cartclient

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/domain/session"
)

// Messages shown to shoppers; details go to the log
const (
	MessageLoadFailed   = "We couldn't load your cart. Please try again."
	MessageUpdateFailed = "We couldn't update your cart. Please try again."
)

// ErrNoSession is returned when no session identifier is available yet
var ErrNoSession = errors.New("no session available")

// API is the cart service as seen by the controller
type API interface {
	GetCart(ctx context.Context, sessionID string) (*cart.CartResponse, error)
	AddItem(ctx context.Context, sessionID string, req cart.AddItemRequest) (*cart.CartResponse, error)
	RemoveItem(ctx context.Context, sessionID string, productID int64) (*cart.CartResponse, error)
	UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int, attributes *string) (*cart.CartResponse, error)
	ClearCart(ctx context.Context, sessionID string) (*cart.CartResponse, error)
}

// State is the client-visible cart. Items always mirror the last server
// response; nothing is applied speculatively.
type State struct {
	Items     []cart.LineItem
	Total     string
	ItemCount int
	Loading   bool
	Error     string
}

func emptyState() State {
	return State{Items: []cart.LineItem{}, Total: "0.00"}
}

// Controller holds the cart state for one shopper and funnels every change
// through the cart API
type Controller struct {
	api      API
	sessions *session.Provider
	logger   *logrus.Logger

	mu          sync.Mutex
	state       State
	loadedFor   string
	subscribers map[chan State]struct{}
}

// NewController creates a controller; pass it to whatever renders the cart
func NewController(api API, sessions *session.Provider, logger *logrus.Logger) *Controller {
	return &Controller{
		api:         api,
		sessions:    sessions,
		logger:      logger,
		state:       emptyState(),
		subscribers: make(map[chan State]struct{}),
	}
}

// State returns a copy of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// Subscribe returns a channel that always holds the latest state and a
// function that ends the subscription
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- copyState(c.state)
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
	}
}

// Load fetches the cart once per session identifier. Later calls with the
// same identifier are no-ops; use Refresh to force a fetch.
func (c *Controller) Load(ctx context.Context) error {
	sessionID := c.sessions.GetOrCreateSessionID()
	if sessionID == "" {
		return ErrNoSession
	}

	c.mu.Lock()
	loaded := c.loadedFor == sessionID
	c.mu.Unlock()
	if loaded {
		return nil
	}

	return c.Refresh(ctx)
}

// Refresh fetches the cart from the server
func (c *Controller) Refresh(ctx context.Context) error {
	return c.run(ctx, MessageLoadFailed, func(sessionID string) (*cart.CartResponse, error) {
		return c.api.GetCart(ctx, sessionID)
	})
}

// Add adds an item
func (c *Controller) Add(ctx context.Context, req cart.AddItemRequest) error {
	return c.run(ctx, MessageUpdateFailed, func(sessionID string) (*cart.CartResponse, error) {
		return c.api.AddItem(ctx, sessionID, req)
	})
}

// Remove removes every line of a product
func (c *Controller) Remove(ctx context.Context, productID int64) error {
	return c.run(ctx, MessageUpdateFailed, func(sessionID string) (*cart.CartResponse, error) {
		return c.api.RemoveItem(ctx, sessionID, productID)
	})
}

// UpdateQuantity changes a line's quantity
func (c *Controller) UpdateQuantity(ctx context.Context, productID int64, quantity int, attributes *string) error {
	return c.run(ctx, MessageUpdateFailed, func(sessionID string) (*cart.CartResponse, error) {
		return c.api.UpdateQuantity(ctx, sessionID, productID, quantity, attributes)
	})
}

// Clear empties the cart. The local state is reset even when the request
// fails, so until the next Refresh it may disagree with the server.
func (c *Controller) Clear(ctx context.Context) error {
	sessionID := c.sessions.GetOrCreateSessionID()
	if sessionID == "" {
		return ErrNoSession
	}

	c.update(func(s *State) { s.Loading = true; s.Error = "" })

	_, err := c.api.ClearCart(ctx, sessionID)
	if err != nil {
		c.logger.WithError(err).Warn("Cart clear failed, resetting local cart anyway")
	}

	c.update(func(s *State) { *s = emptyState() })
	return err
}

// run performs one API call and applies its result. On failure the previous
// items stay in place and a generic message is set, except for not-found
// which leaves the state untouched.
func (c *Controller) run(ctx context.Context, failMessage string, call func(sessionID string) (*cart.CartResponse, error)) error {
	sessionID := c.sessions.GetOrCreateSessionID()
	if sessionID == "" {
		return ErrNoSession
	}

	c.update(func(s *State) { s.Loading = true; s.Error = "" })

	resp, err := call(sessionID)
	if IsNotFound(err) {
		// The line is already gone, e.g. removed from another tab
		c.logger.WithError(err).WithField("session_id", sessionID).Debug("Ignoring stale cart action")
		c.update(func(s *State) { s.Loading = false })
		return err
	}
	if err != nil {
		c.logger.WithError(err).WithField("session_id", sessionID).Warn("Cart request failed")
		c.update(func(s *State) { s.Loading = false; s.Error = failMessage })
		return err
	}

	c.mu.Lock()
	c.loadedFor = sessionID
	c.mu.Unlock()

	c.update(func(s *State) {
		s.Items = resp.Items
		s.Total = resp.Total
		s.ItemCount = resp.ItemCount
		s.Loading = false
		s.Error = ""
	})
	return nil
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&c.state)
	snapshot := copyState(c.state)

	for ch := range c.subscribers {
		// Keep only the newest state in each buffer
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func copyState(s State) State {
	s.Items = append([]cart.LineItem{}, s.Items...)
	return s
}
