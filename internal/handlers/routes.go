// Package handlers exposes the storefront HTTP API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-footwear-checkout/internal/accounts"
	"github.com/imrishuroy/go-footwear-checkout/internal/addresses"
	"github.com/imrishuroy/go-footwear-checkout/internal/auth"
	"github.com/imrishuroy/go-footwear-checkout/internal/catalog"
	"github.com/imrishuroy/go-footwear-checkout/internal/checkout"
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
	"github.com/imrishuroy/go-footwear-checkout/internal/validation"
)

// Courier answers pincode serviceability.
type Courier interface {
	Serviceable(ctx context.Context, pincode string) (bool, error)
}

// HandlerConfig groups dependencies for the API.
type HandlerConfig struct {
	Accounts  *accounts.Store
	Catalog   *catalog.Store
	Addresses *addresses.Store
	Ledger    *ledger.Ledger
	Checkout  *checkout.Service
	Courier   Courier

	Customers *auth.Issuer
	Admins    *auth.Issuer
	// SecureCookies marks session cookies Secure and SameSite=None for cross-site storefronts.
	SecureCookies bool
}

type api struct {
	HandlerConfig
	v *validatorv10.Validate
}

// RegisterRoutes registers every route of the API on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &api{HandlerConfig: cfg, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/signup", h.signup)
	r.POST("/auth/login", h.login)
	r.POST("/auth/logout", h.logout)

	r.GET("/products", h.listProducts)
	r.GET("/products/:id", h.getProduct)

	customer := r.Group("/", auth.Require(cfg.Customers))
	customer.GET("/addresses", h.listAddresses)
	customer.POST("/addresses", h.createAddress)
	customer.PUT("/addresses/:id", h.updateAddress)
	customer.DELETE("/addresses/:id", h.deleteAddress)
	customer.POST("/delivery/check-pincode", h.checkPincode)
	customer.POST("/checkout/start", h.startCheckout)
	customer.POST("/checkout/complete", h.completeCheckout)
	customer.GET("/orders", h.myOrders)

	r.POST("/admin/signup", h.adminSignup)
	r.POST("/admin/login", h.adminLogin)

	admin := r.Group("/admin", auth.Require(cfg.Admins, accounts.RoleAdmin))
	admin.GET("/orders", h.allOrders)
	admin.POST("/orders/:id/status", h.updateOrderStatus)
	admin.GET("/products", h.adminListProducts)
	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.replaceProduct)
	admin.PUT("/products/:id/stock", h.setStock)
	admin.PUT("/products/:id/availability", h.setAvailability)
	admin.DELETE("/products/:id", h.deleteProduct)
}
