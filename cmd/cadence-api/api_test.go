package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	dir := t.TempDir()

	store, err := file.NewPersistence(dir)
	require.NoError(t, err)

	ledger, err := file.NewLedger(dir)
	require.NoError(t, err)

	clock := engine.FixedClock{Time: time.Date(2024, 2, 23, 9, 0, 0, 0, time.UTC)}

	e, err := engine.New(slog.Default(), store, ledger, engine.DefaultConfig(), engine.WithClock(clock))
	require.NoError(t, err)

	return NewAPI(slog.Default(), e, store, ledger).App(), store
}

func request(t *testing.T, app *fiber.App, method, target string) (int, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := request(t, app, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Cadence API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := request(t, app, http.MethodGet, "/livez")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_Health(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := request(t, app, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, status)

	var health web.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestAPI_PassAndRules(t *testing.T) {
	app, store := setupTestApp(t)

	require.NoError(t, store.SubjectRepository().SaveSubject(t.Context(), &models.Subject{
		ID:       "p-1",
		Type:     "project",
		StatusID: "st-open",
		Dates:    map[string]time.Time{"project_start": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}))

	rule := &models.AutomationRule{
		ID:       "kickoff",
		Name:     "Kickoff reminder",
		IsActive: true,
		Trigger:  models.Trigger{Kind: models.TriggerDaysBeforeDate, DateAttribute: "project_start", DaysOffset: 7},
		Action:   models.AddLabel{Label: "kickoff"},
	}

	definition, err := rule.Definition()
	require.NoError(t, err)
	require.NoError(t, store.RuleRepository().SaveRule(t.Context(), definition))

	status, body := request(t, app, http.MethodGet, "/rules")
	require.Equal(t, http.StatusOK, status)

	var rules web.RulesResponse
	require.NoError(t, json.Unmarshal(body, &rules))
	require.Len(t, rules.Rules, 1)
	assert.True(t, rules.Rules[0].Valid)

	status, body = request(t, app, http.MethodPost, "/passes")
	require.Equal(t, http.StatusOK, status)

	var summary models.PassSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 1, summary.Executed)

	subject, err := store.SubjectRepository().SubjectByID(t.Context(), "p-1")
	require.NoError(t, err)
	assert.True(t, subject.HasLabel("kickoff"))
}
