// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// EditionHandlerInterface defines the contract for edition handlers
type EditionHandlerInterface interface {
	GenerateEdition(c fiber.Ctx) error
	PushEdition(c fiber.Ctx) error
	SendPreview(c fiber.Ctx) error
	ListEditions(c fiber.Ctx) error
	GetEdition(c fiber.Ctx) error
}

// EditionHandler handles edition-related HTTP requests
type EditionHandler struct {
	editionFlow businessflow.EditionFlow
	validator   *validator.Validate
}

// NewEditionHandler creates a new edition handler
func NewEditionHandler(editionFlow businessflow.EditionFlow) *EditionHandler {
	return &EditionHandler{
		editionFlow: editionFlow,
		validator:   validator.New(),
	}
}

func (h *EditionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *EditionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GenerateEdition handles edition generation
// @Summary Generate Edition
// @Description Refresh the story pool, render a draft edition, and compute its send time
// @Tags Editions
// @Accept json
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.GenerateEditionResponse} "Edition generated successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 502 {object} dto.APIResponse "Story generation failed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/editions [post]
func (h *EditionHandler) GenerateEdition(c fiber.Ctx) error {
	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.GenerateEditionRequest{ProfileID: profileID}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.editionFlow.GenerateEdition(h.createRequestContext(c, "/api/v1/editions"), req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsStoryGenerationFailed(err) {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Story generation failed", "STORY_GENERATION_FAILED", nil)
		}

		log.Println("Edition generation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Edition generation failed", "EDITION_GENERATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Edition generated successfully", fiber.Map{
		"message": result.Message,
		"edition": result.Edition,
	})
}

// PushEdition handles pushing a draft edition to the ESP
// @Summary Push Edition
// @Description Create the ESP campaign for a draft edition and consume its stories
// @Tags Editions
// @Accept json
// @Produce json
// @Param uuid path string true "Edition UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PushEditionResponse} "Edition pushed successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Edition access denied"
// @Failure 404 {object} dto.APIResponse "Edition not found"
// @Failure 409 {object} dto.APIResponse "Edition already pushed or refresh in flight"
// @Failure 422 {object} dto.APIResponse "ESP rejected the credential"
// @Failure 502 {object} dto.APIResponse "ESP call failed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/editions/{uuid}/push [post]
func (h *EditionHandler) PushEdition(c fiber.Ctx) error {
	editionUUID := c.Params("uuid")
	if editionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Edition UUID is required", "MISSING_EDITION_UUID", nil)
	}

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.PushEditionRequest{
		UUID:      editionUUID,
		ProfileID: profileID,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.editionFlow.PushEdition(h.createRequestContext(c, "/api/v1/editions/"+editionUUID+"/push"), req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsEditionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Edition not found", "EDITION_NOT_FOUND", nil)
		}
		if businessflow.IsEditionAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: edition belongs to another profile", "EDITION_ACCESS_DENIED", nil)
		}
		if businessflow.IsInvalidEditionState(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Edition has already been pushed", "EDITION_INVALID_STATE", nil)
		}
		if businessflow.IsNotConnected(err) {
			return h.ErrorResponse(c, fiber.StatusPreconditionFailed, "Profile is not connected to the ESP", "ESP_NOT_CONNECTED", nil)
		}
		if businessflow.IsConcurrentRefresh(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Credential refresh in flight, retry shortly", "CONCURRENT_REFRESH", nil)
		}
		if businessflow.IsAuthRejected(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "ESP rejected the credential; reconnect required", "AUTH_REJECTED", nil)
		}

		log.Println("Edition push failed", err)
		return h.ErrorResponse(c, fiber.StatusBadGateway, "Edition push failed", "EDITION_PUSH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Edition pushed successfully", fiber.Map{
		"message":              result.Message,
		"campaign_activity_id": result.CampaignActivityID,
		"status":               result.Status,
	})
}

// SendPreview handles sending a preview email for a pushed edition
// @Summary Send Preview
// @Description Send the edition campaign as a test message to the profile's own address
// @Tags Editions
// @Accept json
// @Produce json
// @Param uuid path string true "Edition UUID"
// @Success 200 {object} dto.APIResponse{data=dto.SendPreviewResponse} "Preview handled"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Edition not found"
// @Failure 409 {object} dto.APIResponse "Edition not pushed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/editions/{uuid}/preview [post]
func (h *EditionHandler) SendPreview(c fiber.Ctx) error {
	editionUUID := c.Params("uuid")
	if editionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Edition UUID is required", "MISSING_EDITION_UUID", nil)
	}

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.SendPreviewRequest{
		UUID:      editionUUID,
		ProfileID: profileID,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.editionFlow.SendPreview(h.createRequestContext(c, "/api/v1/editions/"+editionUUID+"/preview"), req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsEditionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Edition not found", "EDITION_NOT_FOUND", nil)
		}
		if businessflow.IsEditionAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: edition belongs to another profile", "EDITION_ACCESS_DENIED", nil)
		}
		if businessflow.IsEditionNotPushed(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Edition has not been pushed to the ESP", "EDITION_NOT_PUSHED", nil)
		}
		if businessflow.IsNotConnected(err) {
			return h.ErrorResponse(c, fiber.StatusPreconditionFailed, "Profile is not connected to the ESP", "ESP_NOT_CONNECTED", nil)
		}

		log.Println("Preview send failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Preview send failed", "PREVIEW_SEND_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Preview handled", fiber.Map{
		"message": result.Message,
		"warning": result.Warning,
	})
}

// ListEditions returns the profile's editions with pagination
// @Summary List Editions
// @Description Retrieve the authenticated profile's editions, newest first
// @Tags Editions
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(10)
// @Success 200 {object} dto.APIResponse{data=dto.ListEditionsResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/editions [get]
func (h *EditionHandler) ListEditions(c fiber.Ctx) error {
	page, limit := parsePagination(c)

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.ListEditionsRequest{
		ProfileID: profileID,
		Page:      page,
		PageSize:  limit,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.editionFlow.ListEditions(h.createRequestContext(c, "/api/v1/editions"), req, metadata)
	if err != nil {
		log.Println("List editions failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list editions", "LIST_EDITIONS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Editions retrieved successfully", fiber.Map{
		"message":  result.Message,
		"editions": result.Editions,
	})
}

// GetEdition returns one edition including its rendered HTML
// @Summary Get Edition
// @Description Retrieve one edition with its rendered HTML
// @Tags Editions
// @Accept json
// @Produce json
// @Param uuid path string true "Edition UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetEditionResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Edition access denied"
// @Failure 404 {object} dto.APIResponse "Edition not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/editions/{uuid} [get]
func (h *EditionHandler) GetEdition(c fiber.Ctx) error {
	editionUUID := c.Params("uuid")
	if editionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Edition UUID is required", "MISSING_EDITION_UUID", nil)
	}

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.GetEditionRequest{
		UUID:      editionUUID,
		ProfileID: profileID,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.editionFlow.GetEdition(h.createRequestContext(c, "/api/v1/editions/"+editionUUID), req, metadata)
	if err != nil {
		if businessflow.IsEditionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Edition not found", "EDITION_NOT_FOUND", nil)
		}
		if businessflow.IsEditionAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Access denied: edition belongs to another profile", "EDITION_ACCESS_DENIED", nil)
		}

		log.Println("Get edition failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get edition", "GET_EDITION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Edition retrieved successfully", fiber.Map{
		"message": result.Message,
		"edition": result.Edition,
		"html":    result.HTML,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *EditionHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *EditionHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}

// parsePagination reads page/limit query params, capping limit at 100
func parsePagination(c fiber.Ctx) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(c.Query("page", "1")); err == nil && v > 0 {
		page = v
	}
	limit = 10
	if v, err := strconv.Atoi(c.Query("limit", "10")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
