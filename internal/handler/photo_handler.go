package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/meal-photo-api/internal/middleware"
	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/internal/service"
	"github.com/noah-isme/meal-photo-api/pkg/config"
	appErrors "github.com/noah-isme/meal-photo-api/pkg/errors"
	"github.com/noah-isme/meal-photo-api/pkg/response"
)

// PhotoHandler wires HTTP endpoints to the photo and remark services.
type PhotoHandler struct {
	photos  *service.PhotoService
	remarks *service.RemarkService
	uploads config.UploadsConfig
}

// NewPhotoHandler creates a new handler.
func NewPhotoHandler(photos *service.PhotoService, remarks *service.RemarkService, uploads config.UploadsConfig) *PhotoHandler {
	return &PhotoHandler{photos: photos, remarks: remarks, uploads: uploads}
}

// Upload godoc
// @Summary Upload a meal photo
// @Description Store a meal photo and trigger social posting for its pool
// @Tags Photos
// @Accept mpfd
// @Produce json
// @Param school_id formData string true "School code or id"
// @Param meal_type formData string true "breakfast, lunch, snacks or dinner"
// @Param photo formData file true "Image file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /photos [post]
func (h *PhotoHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo file is required"))
		return
	}
	if h.uploads.MaxFileSizeBytes > 0 && fileHeader.Size > h.uploads.MaxFileSizeBytes {
		response.Error(c, appErrors.ErrFileTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	// Sniff the actual content type; the multipart header is client-supplied.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	head = head[:n]
	if !h.allowedMIME(http.DetectContentType(head)) {
		response.Error(c, appErrors.ErrUnsupportedMedia)
		return
	}

	schoolID := c.PostForm("school_id")
	if schoolID == "" {
		// Wardens may omit the school; their home school applies.
		if claims.SchoolID != nil {
			schoolID = *claims.SchoolID
		}
	}

	photo, err := h.photos.Upload(c.Request.Context(), service.UploadPhotoRequest{
		SchoolID:   schoolID,
		MealType:   c.PostForm("meal_type"),
		UploadedBy: claims.UserID,
		Filename:   fileHeader.Filename,
		File:       io.MultiReader(bytes.NewReader(head), file),
		IP:         c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, photo, nil)
}

// List godoc
// @Summary List meal photos
// @Description Filtered, paginated photo gallery
// @Tags Photos
// @Produce json
// @Param school_id query string false "School id"
// @Param meal_type query string false "Meal type"
// @Param uploaded_by query string false "Uploader id"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /photos [get]
func (h *PhotoHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.PhotoFilter{
		SchoolID:   c.Query("school_id"),
		UploadedBy: c.Query("uploaded_by"),
	}

	if raw := c.Query("meal_type"); raw != "" {
		mealType := models.MealType(raw)
		if !mealType.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown meal type"))
			return
		}
		filter.MealType = &mealType
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		filter.To = &ts
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	// Wardens only see their own school's gallery.
	if claims.Role == models.RoleWarden && claims.SchoolID != nil {
		filter.SchoolID = *claims.SchoolID
	}

	page, cacheHit, err := h.photos.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, page.Photos, &page.Pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a photo
// @Tags Photos
// @Produce json
// @Param id path string true "Photo id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /photos/{id} [get]
func (h *PhotoHandler) Get(c *gin.Context) {
	photo, err := h.photos.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, photo, nil)
}

// AddRemark godoc
// @Summary Add an officer remark
// @Description Append a remark to a meal photo
// @Tags Photos
// @Accept json
// @Produce json
// @Param id path string true "Photo id"
// @Param payload body service.AddRemarkRequest true "Remark payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /photos/{id}/remarks [post]
func (h *PhotoHandler) AddRemark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AddRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid remark payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	photo, err := h.remarks.Add(c.Request.Context(), c.Param("id"), req, claims.UserID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, photo, nil)
}

func (h *PhotoHandler) allowedMIME(detected string) bool {
	if len(h.uploads.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range h.uploads.AllowedMIMEs {
		if detected == allowed {
			return true
		}
	}
	return false
}
