package middleware

import (
	"storefront-checkout/internal/model"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func Logger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Int("status", c.Response().Status),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("query", req.URL.RawQuery),
				zap.String("ip", c.RealIP()),
				zap.Duration("latency", time.Since(start)),
				zap.String("user-agent", req.UserAgent()),
			}
			if actor, ok := c.Get(actorKey).(model.Actor); ok {
				fields = append(fields, zap.Uint("user_id", actor.UserID))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch status := c.Response().Status; {
			case status >= 500:
				logger.Error("HTTP Request", fields...)
			case status >= 400:
				logger.Warn("HTTP Request", fields...)
			default:
				logger.Info("HTTP Request", fields...)
			}
			return nil
		}
	}
}
