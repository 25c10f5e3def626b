package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type admissionTermServiceMock struct {
	term       *models.AdmissionTerm
	item       *models.TermItem
	err        error
	lastCreate dto.CreateAdmissionTermRequest
	startedID  int64
	endedID    int64
}

func (m *admissionTermServiceMock) Create(ctx context.Context, req dto.CreateAdmissionTermRequest) (*models.AdmissionTerm, error) {
	m.lastCreate = req
	return m.term, m.err
}

func (m *admissionTermServiceMock) Get(ctx context.Context, id int64) (*models.AdmissionTerm, error) {
	return m.term, m.err
}

func (m *admissionTermServiceMock) GetActive(ctx context.Context) (*models.AdmissionTerm, error) {
	return m.term, m.err
}

func (m *admissionTermServiceMock) StartItem(ctx context.Context, id int64) (*models.TermItem, error) {
	m.startedID = id
	return m.item, m.err
}

func (m *admissionTermServiceMock) EndItem(ctx context.Context, id int64) (*models.TermItem, error) {
	m.endedID = id
	return m.item, m.err
}

type admissionFormServiceMock struct {
	form         *models.AdmissionForm
	err          error
	lastSubmit   dto.SubmitAdmissionFormRequest
	lastDecision dto.DecideAdmissionFormRequest
	lastPayment  dto.BeginPaymentRequest
	lastID       int64
}

func (m *admissionFormServiceMock) Submit(ctx context.Context, req dto.SubmitAdmissionFormRequest) (*models.AdmissionForm, error) {
	m.lastSubmit = req
	return m.form, m.err
}

func (m *admissionFormServiceMock) Get(ctx context.Context, id int64) (*models.AdmissionForm, error) {
	m.lastID = id
	return m.form, m.err
}

func (m *admissionFormServiceMock) Decide(ctx context.Context, id int64, req dto.DecideAdmissionFormRequest) (*models.AdmissionForm, error) {
	m.lastID = id
	m.lastDecision = req
	return m.form, m.err
}

func (m *admissionFormServiceMock) BeginPayment(ctx context.Context, id int64, req dto.BeginPaymentRequest) (*models.AdmissionForm, error) {
	m.lastID = id
	m.lastPayment = req
	return m.form, m.err
}

func TestAdmissionTermHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionTermServiceMock{term: &models.AdmissionTerm{ID: 1, Status: models.TermStatusPending}}
	handler := NewAdmissionTermHandler(mockSvc)

	payload := []byte(`{"name":"Admission 2026","academicYear":"2026/2027","startDate":"2026-06-01T00:00:00Z","endDate":"2026-08-01T00:00:00Z","items":[{"grade":"10","startDate":"2026-06-01T00:00:00Z","endDate":"2026-07-01T00:00:00Z","expectedClasses":2}]}`)
	c, w := newJSONContext(http.MethodPost, "/admission-terms", payload)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, mockSvc.lastCreate.Items, 1)
	assert.Equal(t, 2, mockSvc.lastCreate.Items[0].ExpectedClasses)
}

func TestAdmissionTermHandlerGetActiveNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionTermHandler(&admissionTermServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "no active admission term")})

	c, w := newJSONContext(http.MethodGet, "/admission-terms/active", nil)
	handler.GetActive(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmissionTermHandlerItemTransitions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionTermServiceMock{item: &models.TermItem{ID: 4, Status: models.TermStatusProcessing}}
	handler := NewAdmissionTermHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/admission-terms/items/4/start", nil)
	c.Params = gin.Params{{Key: "itemId", Value: "4"}}
	handler.StartItem(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4), mockSvc.startedID)

	c, w = newJSONContext(http.MethodPost, "/admission-terms/items/4/end", nil)
	c.Params = gin.Params{{Key: "itemId", Value: "4"}}
	handler.EndItem(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4), mockSvc.endedID)

	mockSvc.err = appErrors.Clone(appErrors.ErrConflict, "admission term item is done, expected pending")
	c, w = newJSONContext(http.MethodPost, "/admission-terms/items/4/start", nil)
	c.Params = gin.Params{{Key: "itemId", Value: "4"}}
	handler.StartItem(c)
	require.Equal(t, http.StatusConflict, w.Code)

	c, w = newJSONContext(http.MethodPost, "/admission-terms/items/0/start", nil)
	c.Params = gin.Params{{Key: "itemId", Value: "0"}}
	handler.StartItem(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmissionFormHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionFormServiceMock{form: &models.AdmissionForm{ID: 7, Status: models.FormStatusWaitingForApprove}}
	handler := NewAdmissionFormHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/admission-forms", []byte(`{"termItemId":10,"studentId":5,"parentId":6,"classIds":[1,2]}`))
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []int64{1, 2}, mockSvc.lastSubmit.ClassIDs)

	body := decodeEnvelope(t, w)
	var form models.AdmissionForm
	require.NoError(t, json.Unmarshal(body.Data, &form))
	assert.Equal(t, models.FormStatusWaitingForApprove, form.Status)
}

func TestAdmissionFormHandlerDecide(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionFormServiceMock{form: &models.AdmissionForm{ID: 7, Status: models.FormStatusRejected}}
	handler := NewAdmissionFormHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/admission-forms/7/decision", []byte(`{"action":"reject","reason":"incomplete documents"}`))
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.Decide(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), mockSvc.lastID)
	assert.Equal(t, "reject", mockSvc.lastDecision.Action)
	assert.Equal(t, "incomplete documents", mockSvc.lastDecision.Reason)
}

func TestAdmissionFormHandlerBeginPayment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionFormServiceMock{form: &models.AdmissionForm{ID: 7, Status: models.FormStatusPaymentInProgress}}
	handler := NewAdmissionFormHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/admission-forms/7/payment", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.BeginPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.lastPayment.TxnRef)

	c, w = newJSONContext(http.MethodPost, "/admission-forms/7/payment", []byte(`{"txnRef":"txn-9"}`))
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.BeginPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "txn-9", mockSvc.lastPayment.TxnRef)
}

func TestAdmissionFormHandlerGetInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionFormHandler(&admissionFormServiceMock{err: errors.New("boom")})

	c, w := newJSONContext(http.MethodGet, "/admission-forms/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.Get(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
