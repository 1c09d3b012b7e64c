package api

import (
	"net/http"
	"strings"

	"github.com/annel0/shard-realms/internal/game"
	"github.com/gin-gonic/gin"
)

const (
	ctxActor   = "actor"
	ctxIsAdmin = "is_admin"
)

// bearerToken токен из заголовка Authorization или, для websocket, из ?token=
func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// jwtMiddleware проверяет bearer токен и кладёт game.Actor в контекст
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует или неверный токен авторизации",
				Code:    "unauthorized",
			})
			return
		}

		claims, err := rs.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(ctxActor, game.Actor{UserID: claims.PlayerID, Username: claims.Username})
		c.Set(ctxIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// adminMiddleware пропускает только администраторов
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
				Code:    "access_denied",
			})
			return
		}
		c.Next()
	}
}

// actorFrom актор, установленный jwtMiddleware
func actorFrom(c *gin.Context) game.Actor {
	v, _ := c.Get(ctxActor)
	actor, _ := v.(game.Actor)
	return actor
}

// corsMiddleware разрешает браузерным клиентам обращаться к API
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
