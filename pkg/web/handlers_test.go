package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/permissions"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/dukex/approvals/pkg/routing"
	"github.com/dukex/approvals/pkg/services"
	"github.com/dukex/approvals/pkg/testutil"
	"github.com/dukex/approvals/pkg/web"
	"github.com/dukex/approvals/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID = "admin"

func setupTestApp(t *testing.T) (*fiber.App, *protocol.StaticDocuments) {
	t.Helper()

	store := testutil.NewFilePersistence(t)
	documents := protocol.NewStaticDocuments()
	evaluator := conditions.NewEvaluator(log.Discard())
	router := routing.NewEngine(store.RuleRepository(), documents, evaluator, log.Discard())

	progressor := workflow.NewProgressor(workflow.Dependencies{
		Requests:   store.RequestRepository(),
		Actions:    store.ActionRepository(),
		Chains:     store.ChainRepository(),
		Documents:  documents,
		Conditions: evaluator,
		Logger:     log.Discard(),
	})

	handlers := web.NewAPIHandlers(
		services.NewChains(store, log.Discard()),
		services.NewRules(store, router, log.Discard()),
		services.NewRequests(services.RequestsDependencies{
			Persistence: store,
			Router:      router,
			Guard:       permissions.NewGuard(permissions.Config{AdminUserID: adminID}, nil, log.Discard()),
			Progressor:  progressor,
			Logger:      log.Discard(),
		}),
		store,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return app, documents
}

func call(t *testing.T, app *fiber.App, method, path, user string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

// activeChain creates and activates a chain through the API.
func activeChain(t *testing.T, app *fiber.App, steps ...web.StepRequest) *models.ApprovalChain {
	t.Helper()

	status, body := call(t, app, http.MethodPost, "/chains", "", web.CreateChainRequest{Name: "Invoices", Steps: steps})
	require.Equal(t, http.StatusCreated, status, string(body))

	chain := decode[models.ApprovalChain](t, body)

	status, body = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/activate", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	activated := decode[models.ApprovalChain](t, body)

	return &activated
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := call(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])
}

func TestAPIHandlers_ChainLifecycle(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := call(t, app, http.MethodPost, "/chains", "", web.CreateChainRequest{Name: "Purchase orders"})
	require.Equal(t, http.StatusCreated, status, string(body))

	chain := decode[models.ApprovalChain](t, body)
	assert.False(t, chain.Active)

	status, body = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/activate", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decode[map[string]any](t, body)["type"])

	status, body = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/steps", "", web.StepRequest{
		Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Len(t, decode[models.ApprovalChain](t, body).Steps, 1)

	status, body = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/activate", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[models.ApprovalChain](t, body).Active)

	status, body = call(t, app, http.MethodGet, "/chains", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.ApprovalChain](t, body), 1)

	status, body = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/disable", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.NotNil(t, decode[models.ApprovalChain](t, body).DisabledAt)

	status, _ = call(t, app, http.MethodGet, "/chains/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, app, http.MethodPost, "/chains", "", web.CreateChainRequest{Name: "PO"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_RejectedBodyWritesNothing(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := call(t, app, http.MethodPost, "/chains", "", web.CreateChainRequest{Name: "PO"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decode[map[string]any](t, body)["type"])

	status, body = call(t, app, http.MethodPost, "/chains", "", web.CreateChainRequest{
		Name:  "Purchase orders",
		Steps: []web.StepRequest{{Name: "Manager", Approvers: []string{}, Consensus: "bogus"}},
	})
	require.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = call(t, app, http.MethodGet, "/chains", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.ApprovalChain](t, body))

	chain := activeChain(t, app, web.StepRequest{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny})

	status, _ = call(t, app, http.MethodPost, "/chains/"+chain.ID+"/steps", "", web.StepRequest{Name: "Finance", Consensus: models.ConsensusAll})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, app, http.MethodGet, "/chains/"+chain.ID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[models.ApprovalChain](t, body).Steps, 1)

	status, body = call(t, app, http.MethodPost, "/requests", "alice", web.CreateRequestRequest{ChainID: chain.ID})
	require.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = call(t, app, http.MethodGet, "/requests?requester_id=alice", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.ApprovalRequest](t, body))
}

func TestAPIHandlers_RulesPreview(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	chain := activeChain(t, app, web.StepRequest{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny})

	status, body := call(t, app, http.MethodPost, "/rules", "", web.RuleRequest{
		Name:       "Large invoices",
		Conditions: models.ConditionSet{"amount": map[string]any{"greater_than": 10000}},
		ChainID:    chain.ID,
		Priority:   5,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.True(t, decode[models.RoutingRule](t, body).Active)

	status, body = call(t, app, http.MethodPost, "/rules/preview", "", web.PreviewRequest{Metadata: map[string]any{"amount": 25000}})
	require.Equal(t, http.StatusOK, status, string(body))

	decision := decode[routing.Decision](t, body)
	assert.True(t, decision.Matched)
	assert.Equal(t, chain.ID, decision.ChainID)

	status, body = call(t, app, http.MethodPost, "/rules/preview", "", web.PreviewRequest{Metadata: map[string]any{"amount": 10}})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.False(t, decode[routing.Decision](t, body).Matched)

	status, _ = call(t, app, http.MethodPost, "/rules", "", web.RuleRequest{
		Name:       "Dangling",
		Conditions: models.ConditionSet{"amount": 1},
		ChainID:    "missing",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_RequestFlow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	chain := activeChain(t, app, web.StepRequest{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny})

	status, _ := call(t, app, http.MethodPost, "/requests", "", web.CreateRequestRequest{DocumentID: "doc-1", ChainID: chain.ID})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, app, http.MethodPost, "/requests", "alice", web.CreateRequestRequest{DocumentID: "doc-1", ChainID: chain.ID})
	require.Equal(t, http.StatusCreated, status, string(body))

	created := decode[workflow.Result](t, body)
	require.NotNil(t, created.Request)
	assert.Equal(t, "alice", created.Request.RequesterID)
	assert.Equal(t, []string{"manager"}, created.Request.AssignedTo)

	path := "/requests/" + created.Request.ID

	status, body = call(t, app, http.MethodPost, path+"/actions", "mallory", web.ActionRequest{Action: models.ActionApprove})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "permission_denied", decode[map[string]any](t, body)["type"])

	status, _ = call(t, app, http.MethodGet, path, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = call(t, app, http.MethodPost, path+"/actions", "manager", web.ActionRequest{Action: models.ActionApprove, Comments: "fine"})
	require.Equal(t, http.StatusCreated, status, string(body))

	acted := decode[services.ActResult](t, body)
	require.NotNil(t, acted.Progress)
	assert.Equal(t, workflow.OutcomeApproved, acted.Progress.Outcome)
	assert.Equal(t, models.RequestStatusApproved, acted.Request.Status)

	status, body = call(t, app, http.MethodGet, path+"/actions", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.ApprovalAction](t, body), 1)

	status, body = call(t, app, http.MethodGet, path+"/metrics", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	requestMetrics := decode[map[string]any](t, body)
	assert.InDelta(t, 0.0, requestMetrics["completion_percentage"], 0.001)
	assert.Equal(t, true, requestMetrics["is_complete"])

	status, body = call(t, app, http.MethodPost, path+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = call(t, app, http.MethodGet, "/requests/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, app, http.MethodGet, "/requests?requester_id=alice", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.ApprovalRequest](t, body), 1)

	status, _ = call(t, app, http.MethodGet, "/requests", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAPIHandlers_CancelAndResume(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	chain := activeChain(t, app, web.StepRequest{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny})

	_, body := call(t, app, http.MethodPost, "/requests", "alice", web.CreateRequestRequest{DocumentID: "doc-1", ChainID: chain.ID})
	path := "/requests/" + decode[workflow.Result](t, body).Request.ID

	status, body := call(t, app, http.MethodPost, path+"/actions", "manager", web.ActionRequest{Action: models.ActionEscalate})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = call(t, app, http.MethodPost, path+"/resume", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = call(t, app, http.MethodPost, path+"/resume", adminID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.RequestStatusPending, decode[models.ApprovalRequest](t, body).Status)

	status, body = call(t, app, http.MethodPost, path+"/cancel", "alice", web.CancelRequest{Reason: "duplicate"})
	require.Equal(t, http.StatusOK, status, string(body))

	cancelled := decode[models.ApprovalRequest](t, body)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
	assert.Equal(t, "duplicate", cancelled.Metadata["cancel_reason"])
}

func TestAPIHandlers_SubmitDocument(t *testing.T) {
	t.Parallel()

	app, documents := setupTestApp(t)
	chain := activeChain(t, app, web.StepRequest{Name: "Manager", Approvers: []string{"manager"}, Consensus: models.ConsensusAny})

	status, body := call(t, app, http.MethodPost, "/rules", "", web.RuleRequest{
		Name:       "Invoices",
		Conditions: models.ConditionSet{"document_type": "invoice"},
		ChainID:    chain.ID,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	documents.Put("inv-1", map[string]any{"document_type": "invoice"})
	documents.Put("memo-1", map[string]any{"document_type": "memo"})

	status, body = call(t, app, http.MethodPost, "/requests/submit", "alice", web.SubmitDocumentRequest{DocumentID: "inv-1"})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, chain.ID, decode[services.SubmitResult](t, body).Request.ChainID)

	status, body = call(t, app, http.MethodPost, "/requests/submit", "alice", web.SubmitDocumentRequest{DocumentID: "memo-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "no_route", decode[map[string]any](t, body)["type"])

	status, _ = call(t, app, http.MethodPost, "/requests/submit", "alice", web.SubmitDocumentRequest{DocumentID: "ghost"})
	assert.Equal(t, http.StatusNotFound, status)
}
