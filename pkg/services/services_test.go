package services

import (
	"testing"

	"github.com/dukex/approvals/pkg/conditions"
	"github.com/dukex/approvals/pkg/log"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/permissions"
	"github.com/dukex/approvals/pkg/persistence/file"
	"github.com/dukex/approvals/pkg/protocol"
	"github.com/dukex/approvals/pkg/routing"
	"github.com/dukex/approvals/pkg/testutil"
	"github.com/dukex/approvals/pkg/workflow"
	"github.com/stretchr/testify/require"
)

const adminID = "admin"

type testServices struct {
	store     *file.Persistence
	documents *protocol.StaticDocuments
	chains    *Chains
	rules     *Rules
	requests  *Requests
}

func newTestServices(t *testing.T, defaultChainID string) *testServices {
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

	return &testServices{
		store:     store,
		documents: documents,
		chains:    NewChains(store, log.Discard()),
		rules:     NewRules(store, router, log.Discard()),
		requests: NewRequests(RequestsDependencies{
			Persistence:    store,
			Router:         router,
			Guard:          permissions.NewGuard(permissions.Config{AdminUserID: adminID}, nil, log.Discard()),
			Progressor:     progressor,
			DefaultChainID: defaultChainID,
			Documents:      documents,
			Logger:         log.Discard(),
		}),
	}
}

// activeChain stores an active chain built from steps.
func (s *testServices) activeChain(t *testing.T, steps ...*models.ApprovalStep) *models.ApprovalChain {
	t.Helper()

	chain := testutil.CreateTestChain(steps...)
	require.NoError(t, s.store.ChainRepository().Save(t.Context(), chain))

	return chain
}
