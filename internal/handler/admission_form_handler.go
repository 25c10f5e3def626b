package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type admissionFormService interface {
	Submit(ctx context.Context, req dto.SubmitAdmissionFormRequest) (*models.AdmissionForm, error)
	Get(ctx context.Context, id int64) (*models.AdmissionForm, error)
	Decide(ctx context.Context, id int64, req dto.DecideAdmissionFormRequest) (*models.AdmissionForm, error)
	BeginPayment(ctx context.Context, id int64, req dto.BeginPaymentRequest) (*models.AdmissionForm, error)
}

// AdmissionFormHandler exposes admission form endpoints.
type AdmissionFormHandler struct {
	service admissionFormService
}

// NewAdmissionFormHandler constructs an admission form handler.
func NewAdmissionFormHandler(svc admissionFormService) *AdmissionFormHandler {
	return &AdmissionFormHandler{service: svc}
}

// Submit godoc
// @Summary Submit admission form
// @Tags Admission Forms
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAdmissionFormRequest true "Form payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission-forms [post]
func (h *AdmissionFormHandler) Submit(c *gin.Context) {
	var req dto.SubmitAdmissionFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	form, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Get godoc
// @Summary Get admission form
// @Tags Admission Forms
// @Produce json
// @Param id path int true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /admission-forms/{id} [get]
func (h *AdmissionFormHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	form, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, form)
}

// Decide godoc
// @Summary Approve or reject an admission form
// @Tags Admission Forms
// @Accept json
// @Produce json
// @Param id path int true "Form ID"
// @Param payload body dto.DecideAdmissionFormRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission-forms/{id}/decision [post]
func (h *AdmissionFormHandler) Decide(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecideAdmissionFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	form, err := h.service.Decide(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, form)
}

// BeginPayment godoc
// @Summary Mark an approved form as paying
// @Tags Admission Forms
// @Accept json
// @Produce json
// @Param id path int true "Form ID"
// @Param payload body dto.BeginPaymentRequest false "Payment reference"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission-forms/{id}/payment [post]
func (h *AdmissionFormHandler) BeginPayment(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.BeginPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	form, err := h.service.BeginPayment(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, form)
}
