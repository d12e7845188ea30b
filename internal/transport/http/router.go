package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/avdonin/marketplace/internal/handlers"
	"github.com/avdonin/marketplace/internal/handlers/cart"
	authmw "github.com/avdonin/marketplace/internal/middleware/auth"
)

type Deps struct {
	Auth           *authmw.Middleware
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *cart.CartHandler
	SearchHandler  *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/auth/client/register", d.AuthHandler.RegisterClient)
	v1.POST("/auth/seller/register", d.AuthHandler.RegisterSeller)
	v1.POST("/auth/login", d.AuthHandler.Login)
	v1.POST("/auth/logout", d.AuthHandler.Logout)

	v1.GET("/profile", d.AuthHandler.Profile, d.Auth.RequireLogin)
	v1.PATCH("/profile", d.AuthHandler.UpdateProfile, d.Auth.RequireLogin)

	v1.GET("/products", d.ProductHandler.GetProducts, d.Auth.OptionalLogin)
	v1.GET("/products/:id", d.ProductHandler.GetProduct, d.Auth.OptionalLogin)
	v1.GET("/products/:id/similar", d.ProductHandler.Similar)
	v1.GET("/tags", d.ProductHandler.Tags)

	if d.SearchHandler != nil {
		v1.GET("/search", d.SearchHandler.Search)
	}

	seller := v1.Group("/seller", d.Auth.SellerOnly())
	seller.GET("/dashboard", d.ProductHandler.Dashboard)
	seller.GET("/products", d.ProductHandler.MyProducts)
	seller.POST("/products", d.ProductHandler.CreateProduct)
	seller.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	seller.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	admin := v1.Group("/admin", d.Auth.AdminOnly())
	admin.PATCH("/products/:id/checked", d.ProductHandler.Moderate)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	crt := v1.Group("/cart", d.Auth.ClientOnly())
	crt.GET("", d.CartHandler.GetCart)
	crt.POST("", d.CartHandler.AddToCart)
	crt.PATCH("/:id", d.CartHandler.UpdateCartItem)
	crt.DELETE("/:id", d.CartHandler.RemoveFromCart)
}
