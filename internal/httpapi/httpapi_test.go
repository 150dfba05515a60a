package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GrainArc/geofeatured/internal/authshim"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(policy *authshim.Policy) *Server {
	return &Server{Auth: policy}
}

func TestAuthorizeDefaultsToPublic(t *testing.T) {
	s := newTestServer(nil)
	r := gin.New()
	r.GET("/thing", s.authorize("thing.read"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthorizeRejectsUnauthenticatedAdminOp(t *testing.T) {
	s := newTestServer(&authshim.Policy{Scopes: map[string]authshim.Scope{"thing.write": authshim.ScopeAdmin}})
	r := gin.New()
	r.POST("/thing", s.authorize("thing.write"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthorizeAllowsAdminWithHeaders(t *testing.T) {
	s := newTestServer(&authshim.Policy{Scopes: map[string]authshim.Scope{"thing.write": authshim.ScopeAdmin}})
	r := gin.New()
	r.POST("/thing", s.authorize("thing.write"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	req.Header.Set("X-User-Id", "7")
	req.Header.Set("X-Admin", "true")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentityAuthenticatedRequiresUserID(t *testing.T) {
	s := newTestServer(nil)
	r := gin.New()
	var got authshim.Identity
	r.GET("/id", func(c *gin.Context) { got = s.identity(c) })

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Admin", "true")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.False(t, got.Authenticated)
	assert.True(t, got.IsAdmin)
}
