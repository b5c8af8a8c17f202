// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/config"
)

// KeyValueStore is the subset of a key-value store the cart needs.
// Get reports a missing key with found == false and a nil error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Notifier publishes cart change events
type Notifier interface {
	Publish(ctx context.Context, channel, message string) error
}

// Service is the cart store: it maps a cart key to an ordered list of line
// items held as one JSON value. Every mutation is a read-modify-write of the
// whole list with no locking, so concurrent writers to the same key race and
// the last write wins.
type Service struct {
	kv           KeyValueStore
	notifier     Notifier
	ttl          time.Duration
	keyPrefix    string
	eventsPrefix string
	logger       *logrus.Logger
}

// NewService creates a new cart service. notifier may be nil.
func NewService(kv KeyValueStore, notifier Notifier, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		kv:           kv,
		notifier:     notifier,
		ttl:          cfg.Cart.TTL,
		keyPrefix:    cfg.Cart.KeyPrefix,
		eventsPrefix: cfg.Cart.EventsChan,
		logger:       logger,
	}
}

// SessionKey returns the cart key for an anonymous session
func (s *Service) SessionKey(sessionID string) string {
	return s.keyPrefix + sessionID
}

// UserKey returns the cart key for an authenticated user
func (s *Service) UserKey(userID uint) string {
	return s.keyPrefix + "user:" + strconv.FormatUint(uint64(userID), 10)
}

// EventsChannel returns the pub/sub channel carrying events for a cart key
func (s *Service) EventsChannel(cartKey string) string {
	return s.eventsPrefix + cartKey
}

// GetCart returns the items stored under cartKey. A missing key or a value
// that cannot be decoded is an empty cart, not an error.
func (s *Service) GetCart(ctx context.Context, cartKey string) ([]LineItem, error) {
	return s.load(ctx, cartKey)
}

// AddItem merges item into the cart. An existing line with the same product,
// variation and attributes has its quantity increased; otherwise the item is
// appended.
func (s *Service) AddItem(ctx context.Context, cartKey string, item LineItem) ([]LineItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	items, err := s.load(ctx, cartKey)
	if err != nil {
		return nil, err
	}

	items, err = mergeItem(items, item)
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, cartKey, items); err != nil {
		return nil, err
	}
	s.notify(ctx, cartKey, EventUpdated)

	return items, nil
}

// RemoveItem drops every line with productID, across all variations and
// attributes. Removing an absent product still succeeds.
func (s *Service) RemoveItem(ctx context.Context, cartKey string, productID int64) ([]LineItem, error) {
	items, err := s.load(ctx, cartKey)
	if err != nil {
		return nil, err
	}

	kept := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}

	if err := s.save(ctx, cartKey, kept); err != nil {
		return nil, err
	}
	s.notify(ctx, cartKey, EventUpdated)

	return kept, nil
}

// UpdateQuantity sets the quantity of the first line matching productID, and
// attributes when given. Quantities below 1 are rejected; use RemoveItem.
func (s *Service) UpdateQuantity(ctx context.Context, cartKey string, productID int64, quantity int, attributes *string) ([]LineItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if quantity > MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, MaxQuantity)
	}

	items, err := s.load(ctx, cartKey)
	if err != nil {
		return nil, err
	}

	itemFound := false
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		if attributes != nil && items[i].Attributes != *attributes {
			continue
		}
		items[i].Quantity = quantity
		itemFound = true
		break
	}

	if !itemFound {
		return nil, fmt.Errorf("%w: product %d", ErrItemNotFound, productID)
	}

	if err := s.save(ctx, cartKey, items); err != nil {
		return nil, err
	}
	s.notify(ctx, cartKey, EventUpdated)

	return items, nil
}

// ClearCart deletes the cart. Clearing an absent cart succeeds.
func (s *Service) ClearCart(ctx context.Context, cartKey string) error {
	if err := s.kv.Del(ctx, cartKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.notify(ctx, cartKey, EventCleared)
	return nil
}

// MergeCarts folds the cart at srcKey into dstKey with add semantics and then
// deletes srcKey. Used when a guest signs in.
func (s *Service) MergeCarts(ctx context.Context, dstKey, srcKey string) ([]LineItem, error) {
	if dstKey == srcKey {
		return s.load(ctx, dstKey)
	}

	src, err := s.load(ctx, srcKey)
	if err != nil {
		return nil, err
	}

	dst, err := s.load(ctx, dstKey)
	if err != nil {
		return nil, err
	}

	if len(src) == 0 {
		return dst, nil
	}

	for _, item := range src {
		if err := item.Validate(); err != nil {
			s.logger.WithFields(logrus.Fields{
				"cart_key":   srcKey,
				"product_id": item.ProductID,
			}).Warn("Skipping invalid line item during cart merge")
			continue
		}
		merged, err := mergeItem(dst, item)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"cart_key":   srcKey,
				"product_id": item.ProductID,
			}).Warn("Skipping line item that would exceed the quantity limit")
			continue
		}
		dst = merged
	}

	if err := s.save(ctx, dstKey, dst); err != nil {
		return nil, err
	}
	s.notify(ctx, dstKey, EventUpdated)

	if err := s.ClearCart(ctx, srcKey); err != nil {
		// The destination already holds the merged items
		s.logger.WithError(err).WithField("cart_key", srcKey).Warn("Failed to delete merged guest cart")
	}

	return dst, nil
}

// Private helper methods

// mergeItem adds item to the matching line or appends it. The combined
// quantity may not exceed MaxQuantity.
func mergeItem(items []LineItem, item LineItem) ([]LineItem, error) {
	for i := range items {
		if !items[i].SameItem(item) {
			continue
		}
		if item.Quantity > MaxQuantity-items[i].Quantity {
			return nil, fmt.Errorf("%w: quantity of product %d would exceed %d", ErrInvalidInput, item.ProductID, MaxQuantity)
		}
		items[i].Quantity += item.Quantity
		return items, nil
	}
	return append(items, item), nil
}

func (s *Service) load(ctx context.Context, cartKey string) ([]LineItem, error) {
	raw, found, err := s.kv.Get(ctx, cartKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return []LineItem{}, nil
	}

	items, decodeErr := decodeItems(cartKey, raw)
	if decodeErr != nil {
		s.logger.WithError(decodeErr).WithField("cart_key", cartKey).Warn("Discarding unreadable cart value")
		return []LineItem{}, nil
	}

	return items, nil
}

func (s *Service) save(ctx context.Context, cartKey string, items []LineItem) error {
	if items == nil {
		items = []LineItem{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", cartKey, err)
	}

	// Every write restarts the retention window
	if err := s.kv.Set(ctx, cartKey, string(data), s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, cartKey, eventType string) {
	if s.notifier == nil {
		return
	}

	payload, err := json.Marshal(CartEvent{Type: eventType, CartKey: cartKey})
	if err != nil {
		return
	}

	if err := s.notifier.Publish(ctx, s.EventsChannel(cartKey), string(payload)); err != nil {
		s.logger.WithError(err).WithField("cart_key", cartKey).Warn("Failed to publish cart event")
	}
}

func decodeItems(cartKey, raw string) ([]LineItem, *DecodeError) {
	var items []LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, &DecodeError{Key: cartKey, Err: err}
	}
	if items == nil {
		items = []LineItem{}
	}
	return items, nil
}
