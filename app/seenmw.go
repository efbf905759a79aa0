package app

import (
	"github.com/gin-gonic/gin"
)

// TouchLastSeen records activity at most once per throttle window per user.
func (a *App) TouchLastSeen() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || actor.UserID == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if first, err := a.Seen.ShouldTouch(ctx, actor.UserID); err == nil && first {
			if err := a.Repo.TouchUserSeen(ctx, actor.UserID); err != nil {
				a.Log.Warn(ctx, "user.touch_seen_failed")
			}
		}
		c.Next()
	}
}
