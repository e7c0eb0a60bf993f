package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/auth"
	"github.com/imrishuroy/go-footwear-checkout/internal/checkout"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/validation"
)

var errNoCourier = errors.New("courier integration is not configured")

func (h *api) startCheckout(c *gin.Context) {
	var req validation.StartCheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	intent, err := h.Checkout.Start(c.Request.Context(), checkout.StartRequest{
		CustomerID: auth.AccountID(c),
		AddressID:  req.AddressID,
		Items:      req.Items,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"intentId":    intent.ID,
		"clientToken": intent.ClientToken,
		"amount":      intent.AmountMinor,
		"currency":    intent.Currency,
	})
}

// completeCheckout answers 201 for a new order and 200 when the payment had already been
// turned into an order.
func (h *api) completeCheckout(c *gin.Context) {
	var req validation.CompleteCheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	out, err := h.Checkout.Complete(c.Request.Context(), checkout.CompleteRequest{
		CustomerID:        auth.AccountID(c),
		AddressID:         req.AddressID,
		Items:             req.Items,
		Proof:             req.PaymentProof,
		ClaimedTotalMinor: req.TotalAmount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	} else {
		c.Header("Location", fmt.Sprintf("/orders/%s", out.Order.OrderID))
	}
	c.JSON(status, gin.H{"order": out.Order})
}

func (h *api) myOrders(c *gin.Context) {
	list, err := h.Ledger.Orders(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *api) allOrders(c *gin.Context) {
	list, err := h.Ledger.AllOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *api) updateOrderStatus(c *gin.Context) {
	var req validation.StatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
		return
	}
	o, err := h.Ledger.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}
