/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Farmers are created (and deactivated where the scenario says so)
	- Supplies and payments are recorded through the service
	- Balances match the hand-computed values

These tests double as integration tests for the billing service.
*/
package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aasavchauhan/Water-Supply-Management-System/api"
)

func (a *testAPI) loadScenario(id string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (a *testAPI) farmersByName(includeInactive bool) map[string]api.FarmerDTO {
	a.t.Helper()
	path := "/api/farmers"
	if includeInactive {
		path += "?include_inactive=true"
	}
	out := make(map[string]api.FarmerDTO)
	for _, f := range decode[[]api.FarmerDTO](a.t, a.do(http.MethodGet, path, nil)) {
		out[f.Name] = f
	}
	return out
}

func TestScenario_SingleFarmer(t *testing.T) {
	a := newTestAPI(t)
	a.loadScenario("single-farmer")

	farmers := a.farmersByName(false)
	require.Len(t, farmers, 1)
	ramesh := farmers["Ramesh Patil"]
	assert.Equal(t, -175.0, ramesh.Balance)

	rec := a.do(http.MethodGet, "/api/farmers/"+ramesh.ID+"/statement", nil)
	stmt := decode[api.StatementDTO](t, rec)
	require.Len(t, stmt.Rows, 4)
	assert.Equal(t, "payment", stmt.Rows[2].Type)
	assert.Equal(t, 475.0, stmt.Totals.Charges)
	assert.Equal(t, ramesh.Balance, stmt.Closing)
}

func TestScenario_MixedMethods(t *testing.T) {
	a := newTestAPI(t)
	a.loadScenario("mixed-methods")

	farmers := a.farmersByName(false)
	require.Len(t, farmers, 2)

	// 3h30 meter and 3h overnight at the farmer rate 120, 2h15 at the entry rate 90
	sita := farmers["Sita Devi"]
	assert.Equal(t, -482.5, sita.Balance)

	supplies := decode[[]api.SupplyEntryDTO](t, a.do(http.MethodGet, "/api/farmers/"+sita.ID+"/supplies", nil))
	require.Len(t, supplies, 3)
	methods := map[string]int{}
	for _, e := range supplies {
		methods[e.BillingMethod]++
	}
	assert.Equal(t, map[string]int{"meter": 1, "time": 2}, methods)

	rec := a.do(http.MethodPost, "/api/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[api.ReconcileAllDTO](t, rec).Drifted, "seeded balances match the records")
}

func TestScenario_SeasonDues(t *testing.T) {
	a := newTestAPI(t)
	a.loadScenario("season-dues")

	active := a.farmersByName(false)
	all := a.farmersByName(true)
	assert.Len(t, active, 2)
	require.Len(t, all, 3)

	assert.Equal(t, -600.0, all["Arjun Singh"].Balance)
	assert.Equal(t, 615.0, all["Lakshmi Bai"].Balance, "paid in advance")
	assert.False(t, all["Gopal Rao"].IsActive)

	d := decode[api.DashboardDTO](t, a.do(http.MethodGet, "/api/dashboard", nil))
	assert.Equal(t, 2, d.TotalFarmers)
	assert.Equal(t, 600.0, d.PendingDues)
}

func TestScenario_LoadReplacesPreviousData(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())

	a.loadScenario("season-dues")
	a.loadScenario("single-farmer")

	assert.Len(t, a.farmersByName(true), 1)

	current := decode[api.ScenarioDTO](t, a.do(http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "single-farmer", current.ID)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	a := newTestAPI(t)

	list := decode[[]api.ScenarioDTO](t, a.do(http.MethodGet, "/api/scenarios", nil))
	require.NotEmpty(t, list)
	for _, s := range list {
		t.Run(s.ID, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": s.ID})
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}

	rec := a.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
