package api

import (
	"net/http"
	"strconv"

	"reservation-service/internal/models"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the gateway after authentication
const (
	headerActorID      = "X-Actor-ID"
	headerActorRole    = "X-Actor-Role"
	headerRestaurantID = "X-Restaurant-ID"
)

const actorKey = "actor"

// actorMiddleware reads the caller's identity from the gateway headers.
// Requests without a usable identity continue with a zero actor.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := parseActor(c); ok {
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

func parseActor(c *gin.Context) (models.Actor, bool) {
	id := c.GetHeader(headerActorID)
	if id == "" {
		return models.Actor{}, false
	}

	actor := models.Actor{ID: id, Role: models.Role(c.GetHeader(headerActorRole))}
	switch actor.Role {
	case models.RoleCustomer, models.RoleSystem:
	case models.RoleRestaurant:
		rid, err := strconv.ParseInt(c.GetHeader(headerRestaurantID), 10, 64)
		if err != nil || rid <= 0 {
			return models.Actor{}, false
		}
		actor.RestaurantID = rid
	default:
		return models.Actor{}, false
	}
	return actor, true
}

// requireActor rejects requests that carry no identity
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c).IsZero() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid caller identity",
				"code":  "unauthenticated",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
