// Package testutil holds helpers shared by HTTP-level tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

// AssertStatusCode checks if the response has the expected status code.
func AssertStatusCode(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// AssertJSONContains checks if the JSON response contains expected key-value pairs.
func AssertJSONContains(t *testing.T, body []byte, key string, expected interface{}) {
	t.Helper()
	result := ParseJSONResponse(t, body)
	if result[key] != expected {
		t.Errorf("expected %s to be %v, got %v", key, expected, result[key])
	}
}

// AssertErrorMessage checks the {"error": ...} body the handlers write.
func AssertErrorMessage(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	AssertStatusCode(t, rr, status)
	AssertJSONContains(t, rr.Body.Bytes(), "error", message)
}

func ParseJSONResponse(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	return result
}

// NewTestRequest creates a JSON request. An empty token sends no
// Authorization header.
func NewTestRequest(method, path, token string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func NewTestRequestWithJSON(t *testing.T, method, path, token string, data interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return NewTestRequest(method, path, token, strings.NewReader(string(body)))
}

// NewProfile builds an active second-year profile enrolled in the given
// unit codes.
func NewProfile(firstName string, unitCodes ...string) *models.Profile {
	p := &models.Profile{
		ID:                uuid.New(),
		Email:             strings.ToLower(firstName) + "-" + uuid.NewString()[:8] + "@test.com",
		FirstName:         firstName,
		LastName:          "Tester",
		University:        "Deakin University",
		Degree:            "Bachelor of Computer Science",
		YearOfStudy:       2,
		EnrolledUnits:     []models.Unit{},
		AcademicInterests: []string{},
		StudyPreferences:  models.DefaultStudyPreferences(),
		IsActive:          true,
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, code := range unitCodes {
		p.EnrolledUnits = append(p.EnrolledUnits, models.Unit{UnitCode: code, UnitName: code})
	}
	p.UpdatedAt = p.CreatedAt
	return p
}
