package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/datastore/entities"
)

func TestDefinitionCRUD(t *testing.T) {
	t.Parallel()

	defs := newFakeDefinitions()
	registry := alerting.NewRegistry()
	e, _ := newTestController(t, Dependencies{Definitions: defs, Registry: registry})

	rec := doRequest(e, http.MethodPost, "/api/v1/alerts/definitions",
		`{"owner_id":7,"definition":"m(\"web1\", \"cpu\", \"load\") > 4 for 5m do ops"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created entities.AlertDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.True(t, created.Enabled)

	rec = doRequest(e, http.MethodGet, "/api/v1/alerts/definitions/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner_id":7`)

	rec = doRequest(e, http.MethodPut, "/api/v1/alerts/definitions/1",
		`{"owner_id":7,"definition":"m(\"web1\", \"cpu\", \"load\") < 1 do ops","enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := defs.Get(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Contains(t, stored.Definition, "< 1")

	rec = doRequest(e, http.MethodPatch, "/api/v1/alerts/definitions/1/toggle", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err = defs.Get(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	rec = doRequest(e, http.MethodGet, "/api/v1/alerts/definitions/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(e, http.MethodGet, "/api/v1/alerts/definitions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDefinition_RejectsInvalidText(t *testing.T) {
	t.Parallel()

	defs := newFakeDefinitions()
	e, _ := newTestController(t, Dependencies{Definitions: defs})

	for _, body := range []string{
		`{"owner_id":1,"definition":""}`,
		`{"owner_id":1,"definition":"m(\"a\") > 1 do x"}`,
		`{"owner_id":1,"definition":"m(\"a\", \"b\", \"c\") ~ 1 do x"}`,
	} {
		rec := doRequest(e, http.MethodPost, "/api/v1/alerts/definitions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, defs.rows, "invalid definitions are never stored")
}

func TestDeleteDefinition_RemovesFromRegistry(t *testing.T) {
	t.Parallel()

	defs := newFakeDefinitions()
	require.NoError(t, defs.Create(t.Context(), &entities.AlertDefinition{OwnerID: 1, Definition: "x", Enabled: true}))
	registry := alerting.NewRegistry()
	registry.Upsert([]*alerting.Definition{compileDefinition(t, 1, 1, `m("web1", "cpu", "load") > 4 do ops`)})
	require.Equal(t, 1, registry.Len())

	e, _ := newTestController(t, Dependencies{Definitions: defs, Registry: registry})

	rec := doRequest(e, http.MethodDelete, "/api/v1/alerts/definitions/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, registry.Len())

	rec = doRequest(e, http.MethodDelete, "/api/v1/alerts/definitions/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListActiveAlerts_SweepsWithQuota(t *testing.T) {
	t.Parallel()

	registry := alerting.NewRegistry()
	registry.Upsert([]*alerting.Definition{
		compileDefinition(t, 1, 1, `m("a", "b", "c") > 1 do x`),
		compileDefinition(t, 2, 1, `m("a", "b", "c") > 2 do x`),
		compileDefinition(t, 3, 2, `m("a", "b", "c") > 3 do x`),
	})
	e, _ := newTestController(t, Dependencies{Registry: registry, BatchQuota: 2})

	type batch struct {
		Definitions []alerting.Definition `json:"definitions"`
		Count       int                   `json:"count"`
		Total       int                   `json:"total"`
	}
	seen := map[int64]int{}
	for range 2 {
		rec := doRequest(e, http.MethodGet, "/api/v1/alerts/active", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var b batch
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.LessOrEqual(t, b.Count, 2)
		assert.Equal(t, 3, b.Total)
		for _, d := range b.Definitions {
			seen[d.AlertID]++
		}
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, seen, "one sweep covers every definition once")

	rec := doRequest(e, http.MethodGet, "/api/v1/alerts/active?quota=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAlertHistory_Filters(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{rows: []entities.AlertHistory{{AlertID: 3, OwnerID: 1, Name: "load"}}}
	e, _ := newTestController(t, Dependencies{History: history})

	rec := doRequest(e, http.MethodGet, "/api/v1/alerts/history?alert_id=3&owner_id=1&limit=500&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(3), history.lastFilter.AlertID)
	assert.Equal(t, uint(1), history.lastFilter.OwnerID)
	assert.Equal(t, maxHistoryLimit, history.lastFilter.Limit)
	assert.Equal(t, 10, history.lastFilter.Offset)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = doRequest(e, http.MethodGet, "/api/v1/alerts/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, history.lastFilter.Limit)

	rec = doRequest(e, http.MethodGet, "/api/v1/alerts/history?alert_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAlertSchema(t *testing.T) {
	t.Parallel()

	e, _ := newTestController(t, Dependencies{})
	rec := doRequest(e, http.MethodGet, "/api/v1/alerts/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), alerting.ActionTypeEmail)
}

func TestRoutesWithoutStores(t *testing.T) {
	t.Parallel()

	e, _ := newTestController(t, Dependencies{})
	for _, path := range []string{
		"/api/v1/alerts/active",
		"/api/v1/alerts/history",
		"/api/v1/alerts/definitions/1",
		"/api/v1/actions",
	} {
		rec := doRequest(e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
