package web

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

const ctxKeyAdmin = "moderation_admin"

// tokenFromRequest reads a bearer token, falling back to the `token` query
// parameter so review links work when opened from a chat client.
func tokenFromRequest(ctx *gin.Context) string {
	if h := ctx.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	return ctx.Query("token")
}

func (s *Server) authMiddleware(ctx *gin.Context) {
	token := tokenFromRequest(ctx)
	if token == "" {
		abortWithError(ctx, http.StatusUnauthorized, "missing token")
		return
	}

	claims, err := s.cfg.JWT.Parse(token)
	if err != nil {
		gmw.GetLogger(ctx).Debug("reject admin token", zap.Error(err))
		abortWithError(ctx, http.StatusUnauthorized, "invalid token")
		return
	}

	ctx.Set(ctxKeyAdmin, claims.Username)
	ctx.Next()
}

func adminName(ctx *gin.Context) string {
	return ctx.GetString(ctxKeyAdmin)
}
