package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type classServiceMock struct {
	createResp *models.Class
	createErr  error
	getResp    *models.Class
	getErr     error
	selectResp *dto.SelectClassResponse
	selectErr  error
	lastCreate dto.CreateClassRequest
	lastGetID  int64
}

func (m *classServiceMock) Create(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *classServiceMock) Get(ctx context.Context, id int64) (*models.Class, error) {
	m.lastGetID = id
	return m.getResp, m.getErr
}

func (m *classServiceMock) Select(ctx context.Context, req dto.SelectClassRequest) (*dto.SelectClassResponse, error) {
	return m.selectResp, m.selectErr
}

type envelopeBody struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newJSONContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestClassHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &classServiceMock{createResp: &models.Class{ID: 3, Name: "Class Math_2026_v1"}}
	handler := NewClassHandler(mockSvc)

	payload := []byte(`{"teacherId":9,"syllabusId":1,"academicYear":2026,"startDate":"2026-11-02T00:00:00Z","patterns":[{"dayOfWeek":"Monday","startTime":"08:00","endTime":"09:00"}]}`)
	c, w := newJSONContext(http.MethodPost, "/classes", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(9), mockSvc.lastCreate.TeacherID)
	require.Len(t, mockSvc.lastCreate.Patterns, 1)
	assert.Equal(t, "Monday", mockSvc.lastCreate.Patterns[0].DayOfWeek)
}

func TestClassHandlerCreateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClassHandler(&classServiceMock{createErr: appErrors.Clone(appErrors.ErrConflict, "teacher already teaches")})

	c, w := newJSONContext(http.MethodPost, "/classes", []byte(`{"teacherId":9}`))
	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeEnvelope(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrConflict.Code, body.Error.Code)
}

func TestClassHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &classServiceMock{getResp: &models.Class{ID: 12}}
	handler := NewClassHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/classes/12", nil)
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), mockSvc.lastGetID)

	c, w = newJSONContext(http.MethodGet, "/classes/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerSelectConflictKeepsSelection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &classServiceMock{
		selectResp: &dto.SelectClassResponse{
			ClassIDs: []int64{1, 2},
			Conflict: &dto.ClassConflict{ClassID: 1, DayOfWeek: "Monday", StartTime: "08:00", Message: "overlap"},
		},
		selectErr: appErrors.Clone(appErrors.ErrConflict, "overlap"),
	}
	handler := NewClassHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/classes/select", []byte(`{"classId":3,"selectedClassIds":[1,2]}`))
	handler.Select(c)
	require.Equal(t, http.StatusConflict, w.Code)

	body := decodeEnvelope(t, w)
	require.NotNil(t, body.Error)
	var selection dto.SelectClassResponse
	require.NoError(t, json.Unmarshal(body.Data, &selection))
	assert.Equal(t, []int64{1, 2}, selection.ClassIDs)
	require.NotNil(t, selection.Conflict)
	assert.Equal(t, "Monday", selection.Conflict.DayOfWeek)
}

func TestClassHandlerSelectInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClassHandler(&classServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/classes/select", []byte(`{"classId":`))
	handler.Select(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
