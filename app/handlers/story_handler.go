// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// StoryHandlerInterface defines the contract for story handlers
type StoryHandlerInterface interface {
	GenerateStories(c fiber.Ctx) error
	SaveStory(c fiber.Ctx) error
	ListStories(c fiber.Ctx) error
}

// StoryHandler handles story-related HTTP requests
type StoryHandler struct {
	storyFlow businessflow.StoryFlow
	validator *validator.Validate
}

// NewStoryHandler creates a new story handler
func NewStoryHandler(storyFlow businessflow.StoryFlow) *StoryHandler {
	return &StoryHandler{
		storyFlow: storyFlow,
		validator: validator.New(),
	}
}

func (h *StoryHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *StoryHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GenerateStories handles refreshing the story pool from the content collaborator
// @Summary Generate Stories
// @Description Refresh the profile's story pool from the content-generation collaborator
// @Tags Stories
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.GenerateStoriesResponse} "Stories generated successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 502 {object} dto.APIResponse "Story generation failed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/stories/generate [post]
func (h *StoryHandler) GenerateStories(c fiber.Ctx) error {
	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.GenerateStoriesRequest{ProfileID: profileID}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.storyFlow.GenerateStories(h.createRequestContext(c, "/api/v1/stories/generate", 90*time.Second), req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsStoryGenerationFailed(err) {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Story generation failed", "STORY_GENERATION_FAILED", nil)
		}

		log.Println("Story generation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Story generation failed", "STORY_GENERATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Stories generated successfully", fiber.Map{
		"message": result.Message,
		"stories": result.Stories,
	})
}

// SaveStory handles saving a single curated story
// @Summary Save Story
// @Description Save a curated story; an existing story with the same headline is overwritten
// @Tags Stories
// @Accept json
// @Produce json
// @Param request body dto.SaveStoryRequest true "Story data"
// @Success 201 {object} dto.APIResponse{data=dto.SaveStoryResponse} "Story saved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/stories [post]
func (h *StoryHandler) SaveStory(c fiber.Ctx) error {
	var req dto.SaveStoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}
	req.ProfileID = profileID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.storyFlow.SaveStory(h.createRequestContext(c, "/api/v1/stories", 30*time.Second), &req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsHeadlineRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Story headline is required", "STORY_HEADLINE_REQUIRED", nil)
		}
		if businessflow.IsSummaryRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Story summary is required", "STORY_SUMMARY_REQUIRED", nil)
		}

		log.Println("Story save failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Story save failed", "STORY_SAVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Story saved successfully", fiber.Map{
		"message": result.Message,
		"story":   result.Story,
	})
}

// ListStories returns the profile's saved stories with filters and pagination
// @Summary List Stories
// @Description Retrieve the authenticated profile's saved stories with pagination
// @Tags Stories
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (max 100)" default(10)
// @Param unconsumed query bool false "Only stories not yet used by an edition"
// @Success 200 {object} dto.APIResponse{data=dto.ListStoriesResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/stories [get]
func (h *StoryHandler) ListStories(c fiber.Ctx) error {
	page, limit := parsePagination(c)
	onlyUnconsumed := c.Query("unconsumed") == "true"

	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.ListStoriesRequest{
		ProfileID:      profileID,
		OnlyUnconsumed: onlyUnconsumed,
		Page:           page,
		PageSize:       limit,
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.storyFlow.ListStories(h.createRequestContext(c, "/api/v1/stories", 30*time.Second), req, metadata)
	if err != nil {
		log.Println("List stories failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list stories", "LIST_STORIES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Stories retrieved successfully", fiber.Map{
		"message": result.Message,
		"stories": result.Stories,
	})
}

// createRequestContext creates a context with request-scoped values. Story
// generation waits on a slow upstream, so the timeout is per-endpoint.
func (h *StoryHandler) createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
