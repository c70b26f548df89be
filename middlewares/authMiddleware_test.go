package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/appctx"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		id, _ := utils.GetUserIdFromContext(c.Request.Context())
		role, _ := utils.GetUserRoleFromContext(c.Request.Context())
		isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role, "admin": isAdmin})
	})
	return r
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	utils.SetJwtSecret("test-secret")
	r := newAuthRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AUTHENTICATION")
}

func TestAuthMiddleware_BadSignature(t *testing.T) {
	utils.SetJwtSecret("other-secret")
	token, err := utils.JwtGenerate("user-1", utils.RoleTenant)
	require.NoError(t, err)

	utils.SetJwtSecret("test-secret")
	r := newAuthRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_SetsCaller(t *testing.T) {
	utils.SetJwtSecret("test-secret")
	token, err := utils.JwtGenerate("admin-1", utils.RoleAdmin)
	require.NoError(t, err)

	r := newAuthRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"admin-1","role":"admin","admin":true}`, w.Body.String())
}

func TestAuthMiddleware_DoesNotCarryRawToken(t *testing.T) {
	utils.SetJwtSecret("test-secret")
	token, err := utils.JwtGenerate("landlord-1", utils.RoleLandlord)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	var carried interface{}
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		carried = c.Request.Context().Value(appctx.ContextKey("Token"))
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, carried)
}
