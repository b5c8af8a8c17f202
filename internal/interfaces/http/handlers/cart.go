// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/interfaces/http/middleware"
)

// Session identifier transport
const (
	SessionQueryParam = "session_id"
	SessionHeader     = "X-Session-ID"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService *cart.Service
	subscriber  Subscriber
	logger      *logrus.Logger
}

// NewCartHandler creates a new cart handler. subscriber may be nil, which
// disables the live update endpoint.
func NewCartHandler(cartService *cart.Service, subscriber Subscriber, logger *logrus.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		subscriber:  subscriber,
		logger:      logger,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	items, err := h.cartService.GetCart(c.Request.Context(), cartKey)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve cart")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(items))
}

// GetCartCount handles GET /cart/count
func (h *CartHandler) GetCartCount(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	items, err := h.cartService.GetCart(c.Request.Context(), cartKey)
	if err != nil {
		h.respondError(c, err, "Failed to get cart count")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_count": cart.CalculateTotals(items).ItemCount,
	})
}

// AddItem handles POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	var req cart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	items, err := h.cartService.AddItem(c.Request.Context(), cartKey, req.LineItem())
	if err != nil {
		h.respondError(c, err, "Failed to add item to cart")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(items))
}

// UpdateQuantity handles PUT /cart/items/:product_id
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	var req cart.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	items, err := h.cartService.UpdateQuantity(c.Request.Context(), cartKey, productID, *req.Quantity, req.Attributes)
	if err != nil {
		h.respondError(c, err, "Failed to update cart item")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(items))
}

// RemoveItem handles DELETE /cart/items/:product_id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	items, err := h.cartService.RemoveItem(c.Request.Context(), cartKey, productID)
	if err != nil {
		h.respondError(c, err, "Failed to remove item from cart")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(items))
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	if err := h.cartService.ClearCart(c.Request.Context(), cartKey); err != nil {
		h.respondError(c, err, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(nil))
}

// MergeGuestCart handles POST /cart/merge - called when a guest signs in.
// The session cart is folded into the user's cart and then deleted.
func (h *CartHandler) MergeGuestCart(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}

	items, err := h.cartService.MergeCarts(c.Request.Context(), h.cartService.UserKey(userID), h.cartService.SessionKey(sessionID))
	if err != nil {
		h.respondError(c, err, "Failed to merge cart")
		return
	}

	c.JSON(http.StatusOK, cart.NewCartResponse(items))
}

// cartKey resolves the cart for this request: the signed-in user when there
// is one, otherwise the required session identifier. It writes the error
// response itself when neither is usable.
func (h *CartHandler) cartKey(c *gin.Context) (string, bool) {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return h.cartService.UserKey(userID), true
	}

	sessionID, ok := requireSessionID(c)
	if !ok {
		return "", false
	}
	return h.cartService.SessionKey(sessionID), true
}

func (h *CartHandler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, cart.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Item not found in cart",
		})
	default:
		_ = c.Error(err)
		h.logger.WithError(err).WithField("path", c.FullPath()).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": message,
		})
	}
}

func requireSessionID(c *gin.Context) (string, bool) {
	sessionID := c.Query(SessionQueryParam)
	if sessionID == "" {
		sessionID = c.GetHeader(SessionHeader)
	}

	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "session_id is required",
		})
		return "", false
	}
	if !sessionIDPattern.MatchString(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid session_id",
		})
		return "", false
	}
	return sessionID, true
}

func parseProductID(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return productID, true
}
