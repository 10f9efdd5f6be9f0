package handler

import (
	"errors"
	"fmt"
	"net/http"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/dto"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorHandler renders errors as {"error", "code"}. Unknown errors become a
// generic 500 and are logged with their full chain.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}

func errorResponse(err error) (int, *dto.ErrorResponse) {
	if appErr, ok := apperror.From(err); ok {
		return appErr.Status, &dto.ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, &dto.ErrorResponse{Error: fmt.Sprint(httpErr.Message)}
	}

	return http.StatusInternalServerError, &dto.ErrorResponse{Error: "internal server error"}
}

func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.ErrInvalidRequest.WithMessage("invalid %s", name)
	}
	return uint(id), nil
}

func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperror.ErrInvalidRequest.Wrap(err)
	}
	return nil
}
