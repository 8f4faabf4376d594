package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeValidator struct {
	claims *outbound.JWTClaims
	err    error
}

func (f *fakeValidator) ValidateToken(_ string) (*outbound.JWTClaims, error) {
	return f.claims, f.err
}

func authTestRouter(mw gin.HandlerFunc) (*gin.Engine, *uuid.UUID) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var seenUserID uuid.UUID
	router.GET("/protected", mw, func(c *gin.Context) {
		seenUserID = GetUserID(c)
		c.Status(http.StatusNoContent)
	})
	return router, &seenUserID
}

func doGet(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(AuthorizationHeader, authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	valid := &fakeValidator{claims: &outbound.JWTClaims{UserID: userID, Email: "fern@example.com"}}
	invalid := &fakeValidator{err: errors.New("invalid token")}

	t.Run("Valid token passes and sets identity", func(t *testing.T) {
		router, seen := authTestRouter(RequireAuth(valid))
		rec := doGet(router, "Bearer some-token")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, userID, *seen)
	})

	t.Run("Missing header rejected", func(t *testing.T) {
		router, _ := authTestRouter(RequireAuth(valid))
		rec := doGet(router, "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("Non-bearer header rejected", func(t *testing.T) {
		router, _ := authTestRouter(RequireAuth(valid))
		rec := doGet(router, "Basic dXNlcjpwYXNz")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Invalid token rejected and handler not reached", func(t *testing.T) {
		router, seen := authTestRouter(RequireAuth(invalid))
		rec := doGet(router, "Bearer bad-token")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
		assert.Equal(t, uuid.Nil, *seen)
	})
}

func TestOptionalAuth(t *testing.T) {
	userID := uuid.New()
	valid := &fakeValidator{claims: &outbound.JWTClaims{UserID: userID}}
	invalid := &fakeValidator{err: errors.New("invalid token")}

	t.Run("Missing header passes anonymously", func(t *testing.T) {
		router, seen := authTestRouter(OptionalAuth(valid))
		rec := doGet(router, "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, uuid.Nil, *seen)
	})

	t.Run("Invalid token passes anonymously", func(t *testing.T) {
		router, seen := authTestRouter(OptionalAuth(invalid))
		rec := doGet(router, "Bearer bad-token")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, uuid.Nil, *seen)
	})

	t.Run("Valid token sets identity", func(t *testing.T) {
		router, seen := authTestRouter(OptionalAuth(valid))
		rec := doGet(router, "Bearer some-token")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, userID, *seen)
	})
}
