package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/utils"
)

// AuthMiddleware requires a valid bearer token. The caller's id and role are
// placed on the request context for the payment services.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		const bearer = "Bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			abortUnauthenticated(c, "missing bearer token")
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			abortUnauthenticated(c, "invalid or expired token")
			return
		}
		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.ID == "" {
			abortUnauthenticated(c, "token has no subject")
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), customClaim.ID)
		ctx = utils.SetUserRoleInContext(ctx, customClaim.Role)
		ctx = utils.SetIsAdminInContext(ctx, customClaim.Role == utils.RoleAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	pe := utils.InvalidAuthentication(message)
	c.AbortWithStatusJSON(pe.HTTPStatus(), gin.H{
		"success": false,
		"error":   pe.Message,
		"errorId": pe.ErrorID(),
		"hint":    pe.Hint,
	})
}
