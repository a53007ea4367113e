// Package auth provides the JWT middleware for the dashboard API and the
// signed visitor tokens the web-chat widget carries between requests.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject     = "sub"
	claimType        = "typ"
	claimCompanyID   = "company_id"
	claimChannelID   = "channel_id"
	claimVisitorRef  = "visitor_ref"
	visitorTokenType = "visitor"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// VisitorToken identifies one web-chat visitor on one channel.
type VisitorToken struct {
	CompanyID  string
	ChannelID  string
	VisitorRef string
}

// GenerateVisitorToken signs a token the widget replays on every message, so
// the visitor keeps the same contact identity across page loads.
func GenerateVisitorToken(info VisitorToken, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(info.ChannelID) == "" {
		return "", time.Time{}, fmt.Errorf("channel id is required")
	}
	if strings.TrimSpace(info.VisitorRef) == "" {
		return "", time.Time{}, fmt.Errorf("visitor ref is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimType:       visitorTokenType,
		claimSubject:    info.VisitorRef,
		claimCompanyID:  info.CompanyID,
		claimChannelID:  info.ChannelID,
		claimVisitorRef: info.VisitorRef,
		"iat":           now.Unix(),
		"exp":           expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseVisitorToken verifies a widget token and returns its claims.
func ParseVisitorToken(signed, secret string) (VisitorToken, error) {
	token, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return VisitorToken{}, fmt.Errorf("invalid visitor token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claimString(claims, claimType) != visitorTokenType {
		return VisitorToken{}, fmt.Errorf("invalid visitor token")
	}
	return VisitorToken{
		CompanyID:  claimString(claims, claimCompanyID),
		ChannelID:  claimString(claims, claimChannelID),
		VisitorRef: claimString(claims, claimVisitorRef),
	}, nil
}

// UserIDFromContext extracts the authenticated dashboard user id.
func UserIDFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if userID := claimString(claims, claimSubject); userID != "" {
		return userID, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
