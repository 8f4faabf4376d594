package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(env.service, nil)
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func multipartBody(t *testing.T, image []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if image != nil {
		part, err := w.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postIdentify(t *testing.T, router *gin.Engine, image []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, image, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHandler_Identify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(envOptions{})
		router := newTestRouter(env)

		rec := postIdentify(t, router, []byte("jpeg-bytes"), map[string]string{
			"organs":    "flower, leaf",
			"latitude":  "48.85",
			"longitude": "2.35",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var result Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.Equal(t, "Rosa canina", result.ScientificName)
		assert.Equal(t, 1, env.provider.Calls())
	})

	t.Run("Missing image", func(t *testing.T) {
		env := newTestEnv(envOptions{})
		router := newTestRouter(env)

		rec := postIdentify(t, router, nil, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))
		assert.Equal(t, 0, env.provider.Calls())
	})

	t.Run("Invalid coordinates", func(t *testing.T) {
		env := newTestEnv(envOptions{})
		router := newTestRouter(env)

		rec := postIdentify(t, router, []byte("jpeg-bytes"), map[string]string{
			"latitude": "not-a-number",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, env.provider.Calls())
	})

	t.Run("Quota exceeded maps to 429", func(t *testing.T) {
		env := newTestEnv(envOptions{quotaLimit: 1})
		router := newTestRouter(env)

		rec := postIdentify(t, router, []byte("first"), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = postIdentify(t, router, []byte("second"), nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "QUOTA_EXCEEDED", errorCode(t, rec))
	})

	t.Run("Upstream failure maps to 503 without detail", func(t *testing.T) {
		env := newTestEnv(envOptions{providerErr: assertableErr("api key revoked for acct 42")})
		router := newTestRouter(env)

		rec := postIdentify(t, router, []byte("jpeg-bytes"), nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "UPSTREAM_ERROR", errorCode(t, rec))
		assert.NotContains(t, rec.Body.String(), "api key", "upstream error text must not leak to callers")
	})

	t.Run("Open circuit maps to 503", func(t *testing.T) {
		env := newTestEnv(envOptions{providerErr: assertableErr("down"), failureThreshold: 2})
		router := newTestRouter(env)

		postIdentify(t, router, []byte("a"), nil)
		postIdentify(t, router, []byte("b"), nil)

		rec := postIdentify(t, router, []byte("c"), nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "CIRCUIT_OPEN", errorCode(t, rec))
	})
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

func TestHandler_Usage(t *testing.T) {
	env := newTestEnv(envOptions{quotaLimit: 25})
	router := newTestRouter(env)

	_, err := env.service.Identify(context.Background(), testRequest())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identify/usage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var usage Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, "plantid", usage.Service)
	assert.Equal(t, int64(1), usage.Used)
	assert.Equal(t, 25, usage.Limit)
}
