package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/middleware/requestid"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	return r
}

func TestErrorEchoesRequestID(t *testing.T) {
	r := newRouter()
	r.GET("/", func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrConflict, "reward already claimed"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrConflict.Code, body.Error.Code)
	assert.Equal(t, "reward already claimed", body.Error.Message)
	assert.Equal(t, "req-42", body.Meta["request_id"])
}

func TestErrorRecordsServerFailures(t *testing.T) {
	r := newRouter()
	var recorded int
	r.GET("/", func(c *gin.Context) {
		Error(c, errors.New("connection reset"))
		recorded = len(c.Errors)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, recorded)
}

func TestAttachment(t *testing.T) {
	r := newRouter()
	r.GET("/", func(c *gin.Context) {
		Attachment(c, "reward_requests.csv", "text/csv", []byte("id\n"), true)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="reward_requests.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "true", rec.Header().Get(HeaderExportTruncated))
	assert.Equal(t, "id\n", rec.Body.String())
}

func TestAccepted(t *testing.T) {
	r := newRouter()
	r.POST("/", func(c *gin.Context) {
		Accepted(c, map[string]int{"enqueued": 3})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"data":{"enqueued":3}}`, rec.Body.String())
}
