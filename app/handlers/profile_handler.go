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

// ProfileHandlerInterface defines the contract for profile handlers
type ProfileHandlerInterface interface {
	GetProfile(c fiber.Ctx) error
	UpdateProfile(c fiber.Ctx) error
}

// ProfileHandler handles profile-related HTTP requests
type ProfileHandler struct {
	profileFlow businessflow.ProfileFlow
	validator   *validator.Validate
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileFlow businessflow.ProfileFlow) *ProfileHandler {
	return &ProfileHandler{
		profileFlow: profileFlow,
		validator:   validator.New(),
	}
}

func (h *ProfileHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ProfileHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetProfile returns the authenticated profile
// @Summary Get Profile
// @Description Retrieve the authenticated profile's branding, topics, delivery preference and ESP connection status
// @Tags Profile
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.GetProfileResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/profile [get]
func (h *ProfileHandler) GetProfile(c fiber.Ctx) error {
	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.profileFlow.GetProfile(h.createRequestContext(c, "/api/v1/profile"), profileID, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsProfileInactive(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Profile is inactive", "PROFILE_INACTIVE", nil)
		}

		log.Println("Get profile failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get profile", "GET_PROFILE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Profile retrieved successfully", result)
}

// UpdateProfile applies a partial update to branding and delivery preference
// @Summary Update Profile
// @Description Update branding fields, topics, and the weekly delivery preference
// @Tags Profile
// @Accept json
// @Produce json
// @Param request body dto.UpdateProfileRequest true "Profile update data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateProfileResponse} "Profile updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/profile [put]
func (h *ProfileHandler) UpdateProfile(c fiber.Ctx) error {
	var req dto.UpdateProfileRequest
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

	result, err := h.profileFlow.UpdateProfile(h.createRequestContext(c, "/api/v1/profile"), &req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsProfileInactive(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Profile is inactive", "PROFILE_INACTIVE", nil)
		}
		if businessflow.IsInvalidWeekday(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Send weekday must be a lowercase English day name", "INVALID_SEND_WEEKDAY", nil)
		}
		if businessflow.IsInvalidTimeOfDay(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Send time must be in HH:MM format", "INVALID_SEND_TIME", nil)
		}

		log.Println("Profile update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Profile update failed", "PROFILE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Profile updated successfully", fiber.Map{
		"message": result.Message,
		"profile": result.Profile,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *ProfileHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	timeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
