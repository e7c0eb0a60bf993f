package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/addresses"
	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/auth"
	"github.com/imrishuroy/go-footwear-checkout/internal/validation"
)

func (h *api) listAddresses(c *gin.Context) {
	list, err := h.Addresses.List(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []addresses.Address{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *api) createAddress(c *gin.Context) {
	var req validation.AddressRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	a, err := h.Addresses.Create(c.Request.Context(), auth.AccountID(c), addresses.Address{
		FullName:   req.FullName,
		Phone:      req.Phone,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *api) updateAddress(c *gin.Context) {
	var req validation.AddressUpdateRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	a, err := h.Addresses.Update(c.Request.Context(), auth.AccountID(c), c.Param("id"), addresses.Changes{
		FullName:   req.FullName,
		Phone:      req.Phone,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *api) deleteAddress(c *gin.Context) {
	if err := h.Addresses.Delete(c.Request.Context(), auth.AccountID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "address deleted"})
}

func (h *api) checkPincode(c *gin.Context) {
	var req validation.PincodeRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	if h.Courier == nil {
		writeError(c, apperr.Unavailable("check pincode", errNoCourier))
		return
	}
	ok, err := h.Courier.Serviceable(c.Request.Context(), req.Pincode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pincode": req.Pincode, "serviceable": ok})
}
