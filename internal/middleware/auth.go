package middleware

import (
	"errors"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/model"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const actorKey = "actor"

// Auth accepts an HS256 bearer token carrying user_id and is_staff claims
// and stores the caller as a model.Actor on the context.
func Auth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return apperror.ErrUnauthenticated
			}

			actor, err := parseToken(key, raw)
			if err != nil {
				return apperror.ErrUnauthenticated.Wrap(err)
			}

			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

func parseToken(key []byte, raw string) (model.Actor, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return model.Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Actor{}, errors.New("unexpected claims type")
	}

	// numbers decode as float64
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return model.Actor{}, errors.New("invalid user_id claim")
	}
	isStaff, _ := claims["is_staff"].(bool)

	return model.Actor{UserID: uint(userID), IsStaff: isStaff}, nil
}

// ActorFrom returns the caller stored by Auth.
func ActorFrom(c echo.Context) (model.Actor, error) {
	actor, ok := c.Get(actorKey).(model.Actor)
	if !ok {
		return model.Actor{}, apperror.ErrUnauthenticated
	}
	return actor, nil
}

// IssueToken signs a token for the user. Used by tooling and tests; the
// service itself does not log users in.
func IssueToken(secret string, user *model.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"is_staff": user.IsStaff,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
