package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emixlab/emix/internal/ixstore"
	"github.com/emixlab/emix/internal/solver"
)

func newTestServer(t *testing.T) (*Server, *ixstore.Scenario) {
	t.Helper()
	platform := ixstore.NewMemoryPlatform()
	t.Cleanup(func() { platform.Close() })

	scen, err := platform.CreateScenario(context.Background(), "pricing", "baseline")
	require.NoError(t, err)
	require.NoError(t, scen.AddSet("node", "World"))
	require.NoError(t, scen.AddSet("year", "2020", "2030"))
	require.NoError(t, scen.Commit(context.Background(), "api test"))

	return NewServer(platform, 0, 0), scen
}

func publishedResult() *solver.Result {
	return &solver.Result{
		RunID:     "run-1",
		Objective: 12.5,
		Vars: map[string]*solver.Table{
			"PRICE_EMISSION": {
				Dims: []string{"node", "type_emission", "type_tec", "year"},
				Rows: []solver.TableRow{
					{Key: []string{"World", "ghg", "all", "2020"}, Lvl: 1},
					{Key: []string{"World", "ghg", "all", "2030"}, Lvl: 1.6289},
				},
			},
		},
		Equs: map[string]*solver.Table{
			"EMISSION_EQUIVALENCE": {
				Dims: []string{"node", "emission", "type_tec", "year"},
				Rows: []solver.TableRow{{Key: []string{"World", "co2", "all", "2020"}, Lvl: 0.5, Mrg: 5.52}},
			},
		},
	}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/scenarios")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []ixstore.ScenarioInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "pricing", infos[0].Model)
	assert.Equal(t, "api test", infos[0].CommitMsg)
}

func TestVarBeforePublishIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/scenarios/pricing/baseline/1/var/PRICE_EMISSION")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishedVarAndFiltering(t *testing.T) {
	s, scen := newTestServer(t)
	s.Publish(scen, publishedResult())

	rec := get(t, s, "/v1/scenarios/pricing/baseline/1/var/PRICE_EMISSION")
	require.Equal(t, http.StatusOK, rec.Code)
	var table solver.Table
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Len(t, table.Rows, 2)

	rec = get(t, s, "/v1/scenarios/pricing/baseline/1/var/PRICE_EMISSION?year=2030")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	require.Len(t, table.Rows, 1)
	assert.InDelta(t, 1.6289, table.Rows[0].Lvl, 1e-9)

	rec = get(t, s, "/v1/scenarios/pricing/baseline/1/var/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishedEqu(t *testing.T) {
	s, scen := newTestServer(t)
	s.Publish(scen, publishedResult())

	rec := get(t, s, "/v1/scenarios/pricing/baseline/1/equ/EMISSION_EQUIVALENCE")
	require.Equal(t, http.StatusOK, rec.Code)
	var table solver.Table
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	require.Len(t, table.Rows, 1)
	assert.InDelta(t, 5.52, table.Rows[0].Mrg, 1e-9)
}

func TestFullResult(t *testing.T) {
	s, scen := newTestServer(t)
	s.Publish(scen, publishedResult())

	rec := get(t, s, "/v1/scenarios/pricing/baseline/1/result")
	require.Equal(t, http.StatusOK, rec.Code)
	var res solver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.InDelta(t, 12.5, res.Objective, 1e-9)
}

func TestRateLimit(t *testing.T) {
	platform := ixstore.NewMemoryPlatform()
	defer platform.Close()
	s := NewServer(platform, 1, 1)

	first := get(t, s, "/v1/scenarios")
	assert.Equal(t, http.StatusOK, first.Code)

	second := get(t, s, "/v1/scenarios")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Unthrottled endpoints stay reachable.
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
}
