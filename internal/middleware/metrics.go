package middleware

import (
	"storefront-checkout/internal/metrics"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Metrics must wrap Logger so the response status is final when recorded.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)
			duration := time.Since(start).Seconds()

			metrics.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(c.Request().Method, path).Observe(duration)
			return err
		}
	}
}
