// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-cart/internal/interfaces/http/middleware"
)

// SetupCartRoutes sets up cart routes. Guests are identified by session_id,
// signed-in users by their bearer token.
func SetupCartRoutes(rg *gin.RouterGroup, cartHandler *handlers.CartHandler, cfg *config.Config) {
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cart.GET("", cartHandler.GetCart)
		cart.DELETE("", cartHandler.ClearCart)
		cart.GET("/count", cartHandler.GetCartCount)
		cart.GET("/ws", cartHandler.CartWebSocket)

		cart.POST("/items", cartHandler.AddItem)
		cart.PUT("/items/:product_id", cartHandler.UpdateQuantity)
		cart.DELETE("/items/:product_id", cartHandler.RemoveItem)

		cart.POST("/merge", middleware.RequireUser(), cartHandler.MergeGuestCart)
	}
}
