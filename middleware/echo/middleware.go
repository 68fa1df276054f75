package echomw

import (
	"github.com/labstack/echo/v4"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/middleware"
)

// Validate parses the JSON body with p, stores the values in the request
// context on success, or answers with a middleware.ErrorBody.
func Validate(p middleware.Parser, maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			values, err := middleware.Decode(c.Request().Context(), p, c.Request().Body, maxBytes)
			if err != nil {
				return c.JSON(middleware.StatusOf(err), middleware.ErrorPayload(p.FormName(), err))
			}
			c.SetRequest(c.Request().WithContext(middleware.ContextWithValues(c.Request().Context(), values)))
			return next(c)
		}
	}
}

// Values fetches the parsed values from echo.Context.
func Values(c echo.Context) (formstate.Values, bool) {
	return middleware.ValuesFromContext(c.Request().Context())
}
