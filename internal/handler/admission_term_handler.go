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

type admissionTermService interface {
	Create(ctx context.Context, req dto.CreateAdmissionTermRequest) (*models.AdmissionTerm, error)
	Get(ctx context.Context, id int64) (*models.AdmissionTerm, error)
	GetActive(ctx context.Context) (*models.AdmissionTerm, error)
	StartItem(ctx context.Context, id int64) (*models.TermItem, error)
	EndItem(ctx context.Context, id int64) (*models.TermItem, error)
}

// AdmissionTermHandler exposes admission term endpoints.
type AdmissionTermHandler struct {
	service admissionTermService
}

// NewAdmissionTermHandler constructs an admission term handler.
func NewAdmissionTermHandler(svc admissionTermService) *AdmissionTermHandler {
	return &AdmissionTermHandler{service: svc}
}

// Create godoc
// @Summary Create admission term
// @Tags Admission Terms
// @Accept json
// @Produce json
// @Param payload body dto.CreateAdmissionTermRequest true "Term payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admission-terms [post]
func (h *AdmissionTermHandler) Create(c *gin.Context) {
	var req dto.CreateAdmissionTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	term, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, term)
}

// Get godoc
// @Summary Get admission term
// @Tags Admission Terms
// @Produce json
// @Param id path int true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /admission-terms/{id} [get]
func (h *AdmissionTermHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	term, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, term)
}

// GetActive godoc
// @Summary Get the admission term currently accepting registrations
// @Tags Admission Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admission-terms/active [get]
func (h *AdmissionTermHandler) GetActive(c *gin.Context) {
	term, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, term)
}

// StartItem godoc
// @Summary Open a pending term item early
// @Tags Admission Terms
// @Produce json
// @Param itemId path int true "Term item ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission-terms/items/{itemId}/start [post]
func (h *AdmissionTermHandler) StartItem(c *gin.Context) {
	h.transitionItem(c, h.service.StartItem)
}

// EndItem godoc
// @Summary Close a processing term item early
// @Tags Admission Terms
// @Produce json
// @Param itemId path int true "Term item ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission-terms/items/{itemId}/end [post]
func (h *AdmissionTermHandler) EndItem(c *gin.Context) {
	h.transitionItem(c, h.service.EndItem)
}

func (h *AdmissionTermHandler) transitionItem(c *gin.Context, apply func(context.Context, int64) (*models.TermItem, error)) {
	id, err := idParam(c, "itemId")
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := apply(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}
