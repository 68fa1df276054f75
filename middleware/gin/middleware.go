package ginmw

import (
	"github.com/gin-gonic/gin"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/middleware"
)

// Validate parses the JSON body with p. Accepted values are stored in the
// request context; rejected requests are answered with a
// middleware.ErrorBody and aborted.
func Validate(p middleware.Parser, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := middleware.Decode(c.Request.Context(), p, c.Request.Body, maxBytes)
		if err != nil {
			c.AbortWithStatusJSON(middleware.StatusOf(err), middleware.ErrorPayload(p.FormName(), err))
			return
		}
		c.Request = c.Request.WithContext(middleware.ContextWithValues(c.Request.Context(), values))
		c.Next()
	}
}

// Values fetches the parsed values from gin.Context.
func Values(c *gin.Context) (formstate.Values, bool) {
	return middleware.ValuesFromContext(c.Request.Context())
}
