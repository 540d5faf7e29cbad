package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/models"
)

func TestCustodyTestRunsSynchronously(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodPost, "/api/custody/test", gin.H{
		"kind":       "sandbox",
		"category":   "innovation",
		"complexity": "advanced",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp custodyTestResponse
	decode(t, rec, &resp)
	assert.Equal(t, "scenario-manual", resp.ScenarioID)
	assert.Equal(t, "cycle-manual", resp.CycleID)
	assert.Equal(t, models.CycleOK, resp.Outcome)
	assert.InDelta(t, 88.5, resp.Overall, 0.001)
	assert.True(t, resp.Passed)

	assert.Equal(t, models.CategoryInnovation, fx.scheduler.lastCategory)
	assert.Equal(t, models.ComplexityAdvanced, fx.scheduler.lastComplexity)
}

func TestCustodyTestDefaultsAreEmpty(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodPost, "/api/custody/test", gin.H{"kind": "imperium"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fx.scheduler.lastCategory)
	assert.Empty(t, fx.scheduler.lastComplexity)
}

func TestCustodyTestValidation(t *testing.T) {
	fx := newAPIFixture(t, nil)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing kind", gin.H{"category": "security"}},
		{"unknown kind", gin.H{"kind": "skynet"}},
		{"unknown category", gin.H{"kind": "imperium", "category": "astrology"}},
		{"unknown complexity", gin.H{"kind": "imperium", "complexity": "impossible"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.request(t, http.MethodPost, "/api/custody/test", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", decodeError(t, rec).Code)
		})
	}
}

func TestCustodyTestRejectsEmptyBody(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodPost, "/api/custody/test", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustodyTestMapsCategoryNotAllowed(t *testing.T) {
	fx := newAPIFixture(t, nil)
	fx.scheduler.runErr = custody.ErrCategoryNotAllowed

	rec := fx.request(t, http.MethodPost, "/api/custody/test", gin.H{
		"kind":     "imperium",
		"category": "cross_ai",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)
}

func TestCustodyTestMapsCycleInFlight(t *testing.T) {
	fx := newAPIFixture(t, nil)
	fx.scheduler.runErr = custody.ErrCycleInFlight

	rec := fx.request(t, http.MethodPost, "/api/custody/test", gin.H{"kind": "imperium"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCustodyAnalyticsEmptyStore(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodGet, "/api/custody/analytics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.CustodyAnalytics
	decode(t, rec, &resp)
	assert.Zero(t, resp.TotalTests)
}
