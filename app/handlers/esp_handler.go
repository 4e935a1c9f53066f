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

// ESPHandlerInterface defines the contract for ESP connection handlers
type ESPHandlerInterface interface {
	Connect(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error
}

// ESPHandler handles ESP connection HTTP requests
type ESPHandler struct {
	connectFlow businessflow.ESPConnectFlow
	validator   *validator.Validate
}

// NewESPHandler creates a new ESP handler
func NewESPHandler(connectFlow businessflow.ESPConnectFlow) *ESPHandler {
	return &ESPHandler{
		connectFlow: connectFlow,
		validator:   validator.New(),
	}
}

func (h *ESPHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ESPHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Connect exchanges an OAuth authorization code and stores the credential
// @Summary Connect ESP
// @Description Exchange an OAuth authorization code for a token pair and connect the profile to the ESP
// @Tags ESP
// @Accept json
// @Produce json
// @Param request body dto.ConnectESPRequest true "Authorization code"
// @Success 200 {object} dto.APIResponse{data=dto.ConnectESPResponse} "ESP connected successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 409 {object} dto.APIResponse "Credential refresh in flight"
// @Failure 502 {object} dto.APIResponse "Code exchange failed"
// @Router /api/v1/esp/connect [post]
func (h *ESPHandler) Connect(c fiber.Ctx) error {
	var req dto.ConnectESPRequest
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

	result, err := h.connectFlow.Connect(h.createRequestContext(c, "/api/v1/esp/connect"), &req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}
		if businessflow.IsAuthorizationCodeRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code is required", "AUTHORIZATION_CODE_REQUIRED", nil)
		}
		if businessflow.IsConcurrentRefresh(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Credential refresh in flight, retry shortly", "CONCURRENT_REFRESH", nil)
		}

		log.Println("ESP connect failed", err)
		return h.ErrorResponse(c, fiber.StatusBadGateway, "ESP connect failed", "ESP_CONNECT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "ESP connected successfully", fiber.Map{
		"message":   result.Message,
		"connected": result.Connected,
	})
}

// Disconnect drops the stored ESP credential
// @Summary Disconnect ESP
// @Description Remove the profile's stored ESP token pair
// @Tags ESP
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.DisconnectESPResponse} "ESP disconnected successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/esp/connection [delete]
func (h *ESPHandler) Disconnect(c fiber.Ctx) error {
	profileID, ok := c.Locals("profile_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile ID not found in context", "MISSING_PROFILE_ID", nil)
	}

	req := &dto.DisconnectESPRequest{ProfileID: profileID}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.connectFlow.Disconnect(h.createRequestContext(c, "/api/v1/esp/connection"), req, metadata)
	if err != nil {
		if businessflow.IsProfileNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Profile not found", "PROFILE_NOT_FOUND", nil)
		}

		log.Println("ESP disconnect failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "ESP disconnect failed", "ESP_DISCONNECT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "ESP disconnected successfully", fiber.Map{
		"message": result.Message,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *ESPHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
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
