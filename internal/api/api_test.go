package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AytoSync/internal/api"
	"AytoSync/internal/config"
	"AytoSync/internal/model"
	"AytoSync/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		Import: config.ImportConfig{AutoFixSequences: true, MaxBodyBytes: 1 << 20},
		Export: config.ExportConfig{DefaultVersion: "0.0.1"},
	}
	r := gin.New()
	api.RegisterRoutes(r.Group("/api"), db, testutil.NewLogger(), cfg)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestImportEndpoint(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/import", `{"participants":[{"name":"Anna","gender":"F","foo":"bar"}],
		"broadcastNotes":[{"date":"2025-01-01","notes":"x"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result model.ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, model.ImportStats{Participants: 1, BroadcastNotes: 1}, result.Stats)

	w = do(r, http.MethodGet, "/api/participants", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "foo")

	w = do(r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"participants":1,"matchingNights":0,"matchboxes":0,"penalties":0}`, w.Body.String())
}

func TestImportEndpoint_Errors(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/import", `{"participants":[{"name":"Anna","gender":"X"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Import failed", body["error"])
	assert.Contains(t, body["details"], "gender")

	w = do(r, http.MethodPost, "/api/import", `{"participants":[{"id":1,"name":"A","gender":"F"},{"id":1,"name":"B","gender":"M"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Import failed", body["error"])
	assert.NotEmpty(t, body["details"])

	w = do(r, http.MethodGet, "/api/stats", "")
	assert.JSONEq(t, `{"participants":0,"matchingNights":0,"matchboxes":0,"penalties":0}`, w.Body.String())
}

func TestExportEndpoint(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/import",
		`[{"name":"Anna","gender":"weiblich"}]`).Code)

	w := do(r, http.MethodGet, "/api/export?download=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, `^attachment; filename="ayto-complete-export-\d{4}-\d{2}-\d{2}\.json"$`, w.Header().Get("Content-Disposition"))

	var snapshot map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	for _, key := range []string{"participants", "matchingNights", "matchboxes", "penalties", "broadcastNotes", "exportedAt", "version"} {
		assert.Contains(t, snapshot, key)
	}
	assert.JSONEq(t, `"0.0.1"`, string(snapshot["version"]))

	// 导出文档加上 clearBeforeImport 即可回灌
	snapshot["clearBeforeImport"] = json.RawMessage("true")
	doc, err := json.Marshal(snapshot)
	require.NoError(t, err)
	reimport := do(r, http.MethodPost, "/api/import", string(doc))
	assert.Equal(t, http.StatusOK, reimport.Code, reimport.Body.String())
}

func TestMetaEndpoints(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodGet, "/api/meta/dbVersion", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":null}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/meta", `{"key":"dbVersion","value":"1.0.0"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var meta model.Meta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "1.0.0", meta.Value)

	w = do(r, http.MethodGet, "/api/meta/dbVersion", "")
	assert.JSONEq(t, `{"value":"1.0.0"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/meta", `{"value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/meta/fix-sequences", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fix struct {
		Success bool     `json:"success"`
		Message string   `json:"message"`
		Fixed   []string `json:"fixed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fix))
	assert.True(t, fix.Success)
	assert.NotEmpty(t, fix.Message)
	assert.Len(t, fix.Fixed, 6)
}

func TestBroadcastNoteUpsert(t *testing.T) {
	r := newRouter(t)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/broadcast-notes", `{"date":"2025-01-01","notes":"eins"}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/broadcast-notes", `{"date":"2025-01-01","notes":"zwei"}`).Code)

	w := do(r, http.MethodGet, "/api/broadcast-notes", "")
	var notes []model.BroadcastNote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "zwei", notes[0].Notes)
}

func TestEntityCRUD(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/api/penalties", `{"id":0,"participantName":"Ben","reason":"r","amount":50,"date":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var created model.Penalty
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	w = do(r, http.MethodPut, "/api/penalties/1", `{"id":99,"amount":75}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Penalty
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.EqualValues(t, 1, updated.ID)
	assert.Equal(t, 75.0, updated.Amount)
	assert.Equal(t, "r", updated.Reason)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/penalties/42", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/penalties/abc", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/penalties/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/penalties/1", "").Code)
}

func TestProbabilityCacheLookup(t *testing.T) {
	r := newRouter(t)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/probability-cache?dataHash=h1", "").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/probability-cache", `{"dataHash":"h1","payload":{"p":1}}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/probability-cache", `{"dataHash":"h1","payload":{"p":2}}`).Code)

	w := do(r, http.MethodGet, "/api/probability-cache?dataHash=h1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cache model.ProbabilityCache
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cache))
	assert.JSONEq(t, `{"p":2}`, string(cache.Payload))

	w = do(r, http.MethodGet, "/api/probability-cache", "")
	var all []model.ProbabilityCache
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestIntegrityEndpoint(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/import", `{
		"participants":[{"name":"Anna","gender":"F"}],
		"matchboxes":[{"woman":"Anna","man":"Ghost"}]}`).Code)

	w := do(r, http.MethodGet, "/api/integrity", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		OK       bool `json:"ok"`
		Dangling []struct {
			Value string `json:"value"`
		} `json:"dangling"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.OK)
	require.Len(t, report.Dangling, 1)
	assert.Equal(t, "Ghost", report.Dangling[0].Value)
}

func TestEntityWritesFollowImportRules(t *testing.T) {
	r := newRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/participants", `{"name":"Ben"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/matching-nights", `{"name":"MN1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/broadcast-notes", `{"notes":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/probability-cache", `{"payload":{}}`).Code)

	w := do(r, http.MethodPost, "/api/participants", `{"name":"Anna","gender":"weiblich"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var anna model.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anna))
	assert.Equal(t, model.GenderFemale, anna.Gender)
	assert.Equal(t, model.StatusActive, anna.Status)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/participants/1", `{"gender":""}`).Code)

	w = do(r, http.MethodPost, "/api/matching-nights", `{"name":"MN1","ausstrahlungsdatum":"2025-01-05"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var night model.MatchingNight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &night))
	assert.Equal(t, "2025-01-05", night.Date)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/matchboxes", `{"woman":"Anna","man":"Ben"}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/penalties", `{"participantName":"Ben","reason":"r","amount":5,"date":"2025-01-01"}`).Code)

	// 手工录入的数据导出后可以原样回灌
	w = do(r, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	snapshot["clearBeforeImport"] = json.RawMessage("true")
	doc, err := json.Marshal(snapshot)
	require.NoError(t, err)

	reimport := do(r, http.MethodPost, "/api/import", string(doc))
	require.Equal(t, http.StatusOK, reimport.Code, reimport.Body.String())
	var result model.ImportResult
	require.NoError(t, json.Unmarshal(reimport.Body.Bytes(), &result))
	assert.Equal(t, model.ImportStats{Participants: 1, MatchingNights: 1, Matchboxes: 1, Penalties: 1}, result.Stats)
}
