package identify

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/floralens/server/internal/shared/errors"
	"github.com/floralens/server/internal/shared/logger"
	"github.com/gin-gonic/gin"
)

// maxImageBytes caps uploaded photo size.
const maxImageBytes = 10 << 20

// Handler exposes the identification service over HTTP.
type Handler struct {
	service *Service
	log     *logger.Logger
}

// NewHandler creates a new identification handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.New(nil)
	}
	return &Handler{service: service, log: log}
}

// RegisterRoutes registers identification routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/identify", h.Identify)
	rg.GET("/identify/usage", h.Usage)
}

// Identify handles POST /identify.
//
// Multipart form fields:
//   - image:  the photo (required)
//   - organs: comma-separated plant parts shown (optional)
//   - latitude, longitude: observation location (optional)
func (h *Handler) Identify(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		h.abortWithAppError(c, apperrors.BadRequest("image file is required"))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		h.abortWithAppError(c, apperrors.BadRequest("failed to read image"))
		return
	}
	if len(image) == 0 {
		h.abortWithAppError(c, apperrors.BadRequest("image file is empty"))
		return
	}
	if len(image) > maxImageBytes {
		h.abortWithAppError(c, apperrors.BadRequest("image exceeds maximum size"))
		return
	}

	req := &Request{Image: image}

	if organs := c.PostForm("organs"); organs != "" {
		for _, organ := range strings.Split(organs, ",") {
			if organ = strings.TrimSpace(organ); organ != "" {
				req.Params.Organs = append(req.Params.Organs, organ)
			}
		}
	}

	lat, latErr := parseCoord(c.PostForm("latitude"))
	lng, lngErr := parseCoord(c.PostForm("longitude"))
	if latErr != nil || lngErr != nil {
		h.abortWithAppError(c, apperrors.BadRequest("invalid coordinates"))
		return
	}
	if lat != nil && lng != nil {
		req.Params.Latitude = lat
		req.Params.Longitude = lng
	}

	result, err := h.service.Identify(c.Request.Context(), req)
	if err != nil {
		h.handleIdentifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Usage handles GET /identify/usage.
func (h *Handler) Usage(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Usage(c.Request.Context()))
}

// handleIdentifyError maps service errors to HTTP responses. Messages are
// pre-written; internal detail never reaches the caller.
func (h *Handler) handleIdentifyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		h.abortWithAppError(c, apperrors.QuotaExceeded(""))
	case errors.Is(err, ErrCircuitOpen):
		h.abortWithAppError(c, apperrors.CircuitOpen(""))
	case errors.Is(err, ErrUpstream):
		h.abortWithAppError(c, apperrors.UpstreamError())
	default:
		h.abortWithAppError(c, apperrors.Internal("identification failed", err))
	}
}

func (h *Handler) abortWithAppError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// parseCoord parses an optional coordinate form value.
func parseCoord(val string) (*float64, error) {
	if val == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
