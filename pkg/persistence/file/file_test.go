package file

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	assert.Equal(t, "/tmp/test", NewPersistence("/tmp/test").store.root)
	assert.Equal(t, "/tmp/test", NewPersistence("file:///tmp/test").store.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested")
	p := NewPersistence(root)

	require.NoError(t, p.HealthCheck(t.Context()))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, p.Close(t.Context()))
}

func newChain() *models.ApprovalChain {
	return &models.ApprovalChain{
		Name:   "Invoice approval",
		Active: true,
		Steps: []*models.ApprovalStep{
			{StepNumber: 1, Name: "Manager", Approvers: []string{"bob"}, Consensus: models.ConsensusAny, TimeoutDays: 2},
			{StepNumber: 2, Name: "Finance", Approvers: []string{"carol", "dave"}, Consensus: models.ConsensusAll},
		},
	}
}

func TestChainRepository(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ChainRepository()

	chain := newChain()
	require.NoError(t, repo.Save(t.Context(), chain))
	require.NotEmpty(t, chain.ID)
	assert.False(t, chain.CreatedAt.IsZero())

	for _, step := range chain.Steps {
		assert.NotEmpty(t, step.ID)
		assert.Equal(t, chain.ID, step.ChainID)
	}

	loaded, err := repo.GetByID(t.Context(), chain.ID)
	require.NoError(t, err)
	assert.Equal(t, chain.Name, loaded.Name)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, []string{"carol", "dave"}, loaded.Steps[1].Approvers)

	_, err = repo.GetByID(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrChainNotFound)

	_, err = repo.GetByID(t.Context(), "../escape")
	require.ErrorIs(t, err, persistence.ErrChainNotFound)

	chains, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, chains, 1)
}

func TestRuleRepository_ActiveRulesOrdering(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RuleRepository()

	rules := []*models.RoutingRule{
		{Name: "low", ChainID: "c1", Priority: 1, Active: true},
		{Name: "high", ChainID: "c2", Priority: 10, Active: true},
		{Name: "off", ChainID: "c3", Priority: 100, Active: false},
	}

	for _, rule := range rules {
		require.NoError(t, repo.Save(t.Context(), rule))
	}

	active, err := repo.ActiveRules(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "high", active[0].Name)
	assert.Equal(t, "low", active[1].Name)

	all, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = repo.GetByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrRuleNotFound)
}

func newRequest() *models.ApprovalRequest {
	return &models.ApprovalRequest{
		DocumentID:  "doc-1",
		ChainID:     "chain-1",
		RequesterID: "alice",
		Status:      models.RequestStatusPending,
		Priority:    models.PriorityMedium,
		CurrentStep: 1,
		TotalSteps:  2,
		AssignedTo:  []string{"bob"},
	}
}

func TestRequestRepository_CreateAndUpdate(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RequestRepository()

	request := newRequest()
	require.NoError(t, repo.Create(t.Context(), request))
	require.NotEmpty(t, request.ID)
	assert.Equal(t, int64(1), request.Version)

	err := repo.Create(t.Context(), &models.ApprovalRequest{ID: request.ID})
	require.ErrorIs(t, err, persistence.ErrRequestAlreadyExists)

	stale, err := repo.GetByID(t.Context(), request.ID)
	require.NoError(t, err)

	request.Status = models.RequestStatusEscalated
	require.NoError(t, repo.Update(t.Context(), request, &models.ApprovalAction{
		UserID: models.SystemActor, Action: models.ActionEscalate, StepNumber: 1,
	}))
	assert.Equal(t, int64(2), request.Version)

	stale.CurrentStep = 2
	err = repo.Update(t.Context(), stale)
	require.ErrorIs(t, err, persistence.ErrConcurrencyConflict)

	loaded, err := repo.GetByID(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusEscalated, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentStep)

	actions, err := p.ActionRepository().ListByRequest(t.Context(), request.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionEscalate, actions[0].Action)
	assert.Equal(t, request.ID, actions[0].RequestID)

	err = repo.Update(t.Context(), &models.ApprovalRequest{ID: "missing"})
	assert.ErrorIs(t, err, persistence.ErrRequestNotFound)
}

func TestRequestRepository_UpdateKeepsVersionWhenActionsFail(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)
	repo := p.RequestRepository()

	request := newRequest()
	require.NoError(t, repo.Create(t.Context(), request))

	require.NoError(t, os.MkdirAll(filepath.Join(root, actionsDir), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(root, actionsDir, request.ID+".json"), []byte("not json"), 0600))

	next := request.Clone()
	next.Status = models.RequestStatusEscalated

	err := repo.Update(t.Context(), next, &models.ApprovalAction{
		UserID: models.SystemActor, Action: models.ActionEscalate, StepNumber: 1,
	})
	require.Error(t, err)

	loaded, err := repo.GetByID(t.Context(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, models.RequestStatusPending, loaded.Status)
}

func TestRequestRepository_ConcurrentUpdatesHaveOneWinner(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RequestRepository()

	request := newRequest()
	require.NoError(t, repo.Create(t.Context(), request))

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			copyOf := request.Clone()
			copyOf.Status = models.RequestStatusApproved

			err := repo.Update(t.Context(), copyOf)
			if err == nil {
				wins.Add(1)
			} else if persistence.IsConcurrencyConflict(err) {
				conflicts.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), conflicts.Load())
}

func TestRequestRepository_OverdueAndList(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RequestRepository()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	beforeDeadline := past.Add(-time.Hour)
	afterDeadline := past.Add(time.Minute)

	overdue := newRequest()
	overdue.Deadline = &past

	notYet := newRequest()
	notYet.Deadline = &future

	escalatedEarlier := newRequest()
	escalatedEarlier.Deadline = &past
	escalatedEarlier.EscalationDate = &beforeDeadline

	alreadyEscalated := newRequest()
	alreadyEscalated.Deadline = &past
	alreadyEscalated.EscalationDate = &afterDeadline

	approved := newRequest()
	approved.Deadline = &past
	approved.Status = models.RequestStatusApproved
	approved.AssignedTo = []string{"carol"}

	for _, request := range []*models.ApprovalRequest{overdue, notYet, escalatedEarlier, alreadyEscalated, approved} {
		require.NoError(t, repo.Create(t.Context(), request))
	}

	found, err := repo.Overdue(t.Context(), now)
	require.NoError(t, err)

	ids := make([]string, 0, len(found))
	for _, request := range found {
		ids = append(ids, request.ID)
	}

	assert.ElementsMatch(t, []string{overdue.ID, escalatedEarlier.ID}, ids)

	assigned, err := repo.List(t.Context(), persistence.RequestFilter{AssignedTo: "carol"})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, approved.ID, assigned[0].ID)

	limited, err := repo.List(t.Context(), persistence.RequestFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestActionRepository_AppendPreservesOrder(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ActionRepository()

	empty, err := repo.ListByRequest(t.Context(), "req-1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, action := range []models.ActionType{models.ActionComment, models.ActionApprove, models.ActionReject} {
		require.NoError(t, repo.Append(t.Context(), &models.ApprovalAction{
			RequestID: "req-1", UserID: "bob", Action: action, StepNumber: 1,
		}))
	}

	actions, err := repo.ListByRequest(t.Context(), "req-1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, models.ActionComment, actions[0].Action)
	assert.Equal(t, models.ActionReject, actions[2].Action)
	assert.NotEmpty(t, actions[0].ID)
	assert.False(t, actions[0].CreatedAt.IsZero())
}
