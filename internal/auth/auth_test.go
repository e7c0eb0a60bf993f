package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, "token")

	tok, err := iss.Issue("acc-1", "a@b.in", "customer")
	require.NoError(t, err)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "a@b.in", claims.Email)
	assert.Equal(t, "customer", claims.Role)
}

func TestVerify_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, "token")
	other := NewIssuer("other-secret", time.Hour, "token")
	expired := NewIssuer("secret", time.Hour, "token")
	expired.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	foreign, _ := other.Issue("acc-1", "a@b.in", "admin")
	old, _ := expired.Issue("acc-1", "a@b.in", "customer")

	for name, tok := range map[string]string{
		"foreign secret": foreign,
		"expired":        old,
		"garbage":        "not-a-jwt",
		"empty":          "",
	} {
		_, err := iss.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func newRouter(iss *Issuer, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Require(iss, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": AccountID(c), "role": Role(c)})
	})
	return r
}

func TestRequire(t *testing.T) {
	customers := NewIssuer("cust-secret", time.Hour, "token")
	admins := NewIssuer("admin-secret", time.Hour, "admin_token")

	custTok, _ := customers.Issue("c1", "c@x.in", "customer")
	adminTok, _ := admins.Issue("a1", "a@x.in", "admin")
	custWithAdminSecret, _ := admins.Issue("c1", "c@x.in", "customer")

	tests := []struct {
		name   string
		router *gin.Engine
		setup  func(r *http.Request)
		want   int
	}{
		{"no token", newRouter(customers), func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer header", newRouter(customers), func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+custTok) }, http.StatusOK},
		{"cookie", newRouter(customers), func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: custTok}) }, http.StatusOK},
		{"customer token on admin route", newRouter(admins, "admin"), func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+custTok) }, http.StatusUnauthorized},
		{"admin-signed customer role", newRouter(admins, "admin"), func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+custWithAdminSecret) }, http.StatusForbidden},
		{"admin cookie", newRouter(admins, "admin"), func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "admin_token", Value: adminTok}) }, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			tc.router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
