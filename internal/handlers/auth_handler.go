package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/accounts"
	"github.com/imrishuroy/go-footwear-checkout/internal/auth"
	"github.com/imrishuroy/go-footwear-checkout/internal/validation"
)

func (h *api) signup(c *gin.Context) {
	var req validation.SignupRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	acc, err := h.Accounts.Register(c.Request.Context(), newAccount(req))
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, h.Customers, acc, http.StatusCreated)
}

func (h *api) login(c *gin.Context) {
	var req validation.LoginRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	acc, err := h.Accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, h.Customers, acc, http.StatusOK)
}

func (h *api) logout(c *gin.Context) {
	h.setCookie(c, h.Customers.CookieName(), "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// adminSignup creates the one admin account. Once it exists the route answers 403.
func (h *api) adminSignup(c *gin.Context) {
	var req validation.SignupRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	acc, err := h.Accounts.SetupAdmin(c.Request.Context(), newAccount(req))
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, h.Admins, acc, http.StatusCreated)
}

func (h *api) adminLogin(c *gin.Context) {
	var req validation.LoginRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	acc, err := h.Accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err == nil && acc.Role != accounts.RoleAdmin {
		err = accounts.ErrInvalidCredentials
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.startSession(c, h.Admins, acc, http.StatusOK)
}

func newAccount(req validation.SignupRequest) accounts.NewAccount {
	return accounts.NewAccount{
		FullName: req.FullName,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	}
}

// startSession issues a token, sets it as an HttpOnly cookie and returns it in the body
// for clients that prefer the Authorization header.
func (h *api) startSession(c *gin.Context, iss *auth.Issuer, acc *accounts.Account, status int) {
	token, err := iss.Issue(acc.AccountID, acc.Email, acc.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setCookie(c, iss.CookieName(), token, int(iss.TTL().Seconds()))
	c.JSON(status, gin.H{"user": acc, "token": token})
}

func (h *api) setCookie(c *gin.Context, name, value string, maxAge int) {
	if h.SecureCookies {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(name, value, maxAge, "/", "", h.SecureCookies, true)
}
