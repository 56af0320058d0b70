package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/bazai/stems-api/internal/client"
	"github.com/bazai/stems-api/internal/middleware"
	"github.com/bazai/stems-api/internal/model"
	"github.com/bazai/stems-api/internal/service"
	"github.com/bazai/stems-api/internal/store"
	"github.com/bazai/stems-api/pkg/response"
)

type StemHandler struct {
	service   *service.StemService
	validator *validator.Validate
}

func NewStemHandler(svc *service.StemService, v *validator.Validate) *StemHandler {
	return &StemHandler{
		service:   svc,
		validator: v,
	}
}

// Separate handles POST /api/stems/separate
// @Summary      Submit a stem separation job
// @Description  Start vocal separation or full stem splitting for a generated track
// @Tags         Stems
// @Accept       json
// @Produce      json
// @Param        request body model.StemSubmitRequest true "Separation request"
// @Success      200 {object} model.StemSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stems/separate [post]
func (h *StemHandler) Separate(c *fiber.Ctx) error {
	var req model.StemSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	ownerID := middleware.GetUserID(c)
	ownerEmail := middleware.GetUserEmail(c)

	result, err := h.service.Submit(c.Context(), &req, ownerID, ownerEmail)
	if err != nil {
		var upstreamErr *client.UpstreamError
		if errors.As(err, &upstreamErr) {
			return response.UpstreamError(c, "Separation could not be started")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Status handles GET /api/stems/status/:taskId
// @Summary      Poll a separation job
// @Description  Returns processing until the job is genuinely complete, then the normalized stem URLs
// @Tags         Stems
// @Produce      json
// @Param        taskId path string true "Task ID"
// @Success      200 {object} model.StemStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stems/status/{taskId} [get]
func (h *StemHandler) Status(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	ownerRef := c.Query("ownerRef")
	if ownerRef == "" {
		ownerRef = middleware.GetUserID(c)
	}

	result, err := h.service.Status(c.Context(), taskID, ownerRef)
	if err != nil {
		var upstreamErr *client.UpstreamError
		if errors.As(err, &upstreamErr) {
			return response.UpstreamError(c, "Upstream status query failed")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// History handles GET /api/stems/history
// @Summary      List the caller's stem history
// @Description  Returns the bounded, newest-first list of completed separations
// @Tags         Stems
// @Produce      json
// @Success      200 {object} model.HistoryResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stems/history [get]
func (h *StemHandler) History(c *fiber.Ctx) error {
	ownerID := middleware.GetUserID(c)
	if ownerID == "" {
		return response.Unauthorized(c, "Missing user identity")
	}

	result, err := h.service.History(c.Context(), ownerID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/stems/result/:taskId
// @Summary      Fetch the stored job record
// @Description  Returns the persisted job record for a task id
// @Tags         Stems
// @Produce      json
// @Param        taskId path string true "Task ID"
// @Success      200 {object} model.StemJob
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stems/result/{taskId} [get]
func (h *StemHandler) Result(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	job, err := h.service.JobRecord(c.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Callback handles POST /callbacks/stems — the upstream webhook.
// Always acknowledges with 200 so the upstream never retries because of
// our internal failures; those are logged, not surfaced.
// @Summary      Upstream completion webhook
// @Tags         Stems
// @Accept       json
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /callbacks/stems [post]
func (h *StemHandler) Callback(c *fiber.Ctx) error {
	// Deliveries have no upstream-supplied id; tag each one so the log
	// lines of concurrent deliveries stay separable.
	deliveryID := uuid.New().String()

	var env model.CallbackEnvelope
	if err := c.BodyParser(&env); err != nil {
		log.Printf("[Stems] callback %s body unreadable: %v", deliveryID, err)
		return response.OK(c, fiber.Map{"status": "received"})
	}

	if err := h.service.HandleCallback(c.Context(), &env); err != nil {
		log.Printf("[Stems] callback %s not applied: %v", deliveryID, err)
	}

	return response.OK(c, fiber.Map{"status": "received"})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
