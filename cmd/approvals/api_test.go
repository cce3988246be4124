package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/approvals/pkg/channels/gochannel"
	"github.com/dukex/approvals/pkg/eventbus"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/otelhelper"
	"github.com/dukex/approvals/pkg/permissions"
	"github.com/dukex/approvals/pkg/persistence/file"
	"github.com/dukex/approvals/pkg/web"
	"github.com/dukex/approvals/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *engine) {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	e, err := assemble(log.Discard(), file.NewPersistence(t.TempDir()), eventbus.NewWatermillEventBus(log.Discard(), pub, sub), otelhelper.NoopTracer())
	require.NoError(t, err)

	t.Cleanup(func() { e.close(t.Context()) })

	return NewAPI(e, permissions.Config{AdminUserID: "admin"}, "").App(), e
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func post(t *testing.T, app *fiber.App, path, user string, body any) (int, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	if user != "" {
		req.Header.Set(web.UserHeader, user)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Approvals API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := get(t, app, "/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, _ = get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_MetricsExposeTransitions(t *testing.T) {
	app, _ := setupTestApp(t)

	chain := web.CreateChainRequest{Name: "Invoices", Steps: []web.StepRequest{
		{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny},
	}}

	data, err := json.Marshal(chain)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chains", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.ApprovalChain
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NoError(t, resp.Body.Close())

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/chains/"+created.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	data, err = json.Marshal(web.CreateRequestRequest{DocumentID: "doc-1", ChainID: created.ID})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.UserHeader, "alice")

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result workflow.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NoError(t, resp.Body.Close())

	data, err = json.Marshal(web.ActionRequest{Action: models.ActionApprove})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/requests/"+result.Request.ID+"/actions", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.UserHeader, "manager")

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	status, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, status)

	approved := false

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, `approvals_transitions_total{status="approved"}`) {
			approved = true
		}
	}

	assert.True(t, approved, "approved transition is exported")
}

func TestAPI_SubmitRoutesOnSubmittedMetadata(t *testing.T) {
	app, e := setupTestApp(t)

	status, body := post(t, app, "/chains", "", web.CreateChainRequest{Name: "Catch all", Steps: []web.StepRequest{
		{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny},
	}})
	require.Equal(t, http.StatusCreated, status, string(body))

	var chain models.ApprovalChain
	require.NoError(t, json.Unmarshal(body, &chain))

	status, body = post(t, app, "/chains/"+chain.ID+"/activate", "", struct{}{})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = post(t, app, "/rules", "", web.RuleRequest{Name: "Everything", Conditions: models.ConditionSet{}, ChainID: chain.ID})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = post(t, app, "/requests/submit", "alice", web.SubmitDocumentRequest{
		DocumentID: "doc-1",
		Metadata:   map[string]any{"document_type": "invoice"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var submitted workflow.Result
	require.NoError(t, json.Unmarshal(body, &submitted))
	require.NotNil(t, submitted.Request)
	assert.Equal(t, chain.ID, submitted.Request.ChainID)

	metadata, err := e.documents.GetDocumentMetadata(t.Context(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "invoice", metadata["document_type"])

	status, _ = post(t, app, "/requests/submit", "alice", web.SubmitDocumentRequest{DocumentID: "doc-2"})
	assert.Equal(t, http.StatusNotFound, status)
}
