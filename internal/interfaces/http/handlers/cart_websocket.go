// internal/interfaces/http/handlers/cart_websocket.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/your-org/storefront-cart/internal/domain/cart"
)

const wsPingInterval = 30 * time.Second

// Subscriber delivers pub/sub messages for a channel until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already filtered by the CORS middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

type cartMessage struct {
	Type string `json:"type"`
	*cart.CartResponse
}

// CartWebSocket handles GET /cart/ws. It sends the current cart, then a fresh
// snapshot after every change published for the same cart key.
func (h *CartHandler) CartWebSocket(c *gin.Context) {
	if h.subscriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Live cart updates are not available",
		})
		return
	}

	cartKey, ok := h.cartKey(c)
	if !ok {
		return
	}

	// The connection outlives the request timeout; it ends when the client goes away
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	events, err := h.subscriber.Subscribe(ctx, h.cartService.EventsChannel(cartKey))
	if err != nil {
		h.respondError(c, err, "Failed to subscribe to cart updates")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("cart_key", cartKey)

	// Control frames are only processed while reading
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.sendSnapshot(ctx, conn, cartKey, "snapshot"); err != nil {
		log.WithError(err).Debug("Closing cart stream")
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}

			var event cart.CartEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				log.WithError(err).Warn("Ignoring malformed cart event")
				continue
			}

			msgType := "cart_updated"
			if event.Type == cart.EventCleared {
				msgType = "cart_cleared"
			}
			if err := h.sendSnapshot(ctx, conn, cartKey, msgType); err != nil {
				log.WithError(err).Debug("Closing cart stream")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *CartHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, cartKey, msgType string) error {
	items, err := h.cartService.GetCart(ctx, cartKey)
	if err != nil {
		return err
	}
	return conn.WriteJSON(cartMessage{
		Type:         msgType,
		CartResponse: cart.NewCartResponse(items),
	})
}
