package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/audit"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/policy"
	"github.com/xela07ax/crm-approval-gateway/internal/workflow"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	mu       sync.Mutex
	executes int
	existing map[int64]bool
	rec      *domain.Record
	lastOp   domain.Operation
	lastFlds map[string]domain.FieldValue
}

func (f *fakeInvoker) Execute(_ context.Context, op domain.Operation, _ domain.EntityType, _ *int64, fields map[string]domain.FieldValue) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes++
	f.lastOp = op
	f.lastFlds = fields
	return f.rec, nil
}

func (f *fakeInvoker) Exists(_ context.Context, _ domain.EntityType, id int64) (bool, error) {
	return f.existing[id], nil
}

type fakeFreeze struct{ frozen map[string]bool }

func (f *fakeFreeze) IsFrozen(id string) bool { return f.frozen[id] }

type captureAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *captureAuditor) Log(e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

type noopNotifier struct{}

func (noopNotifier) NotifyApprovers(*domain.PendingRequest)               {}
func (noopNotifier) NotifyOutcome(*domain.PendingRequest, domain.Outcome) {}

type fixture struct {
	intake   *IntakeService
	registry *policy.Registry
	invoker  *fakeInvoker
	store    *workflow.MemoryStore
	auditor  *captureAuditor
	freeze   *fakeFreeze
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	registry := policy.NewRegistry(policy.NewMemoryStore(), logger)
	invoker := &fakeInvoker{rec: &domain.Record{ID: 500}, existing: map[int64]bool{10: true}}
	store := workflow.NewMemoryStore()
	auditor := &captureAuditor{}
	freeze := &fakeFreeze{frozen: make(map[string]bool)}

	quorum, err := workflow.NewQuorumPolicy(workflow.QuorumFirst)
	require.NoError(t, err)
	engine := workflow.NewEngine(store, invoker, noopNotifier{}, quorum, logger)

	intake := NewIntakeService(registry, policy.NewAuthorizer(registry), freeze, engine, invoker, auditor, nil, logger)
	return &fixture{intake: intake, registry: registry, invoker: invoker, store: store, auditor: auditor, freeze: freeze}
}

func createCmd(requester string) SubmitCommand {
	return SubmitCommand{
		RequesterID: requester,
		Operation:   "create",
		EntityType:  "person",
		Fields:      map[string]string{"name": "Ada Lovelace"},
	}
}

func TestFrozenRequesterRejected(t *testing.T) {
	fx := newFixture(t)
	fx.freeze.frozen["dave"] = true

	_, err := fx.intake.Submit(context.Background(), "trace-1", createCmd("dave"))
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, fx.invoker.executes)
}

func TestUnknownOperationFailsValidation(t *testing.T) {
	fx := newFixture(t)

	cmd := createCmd("dave")
	cmd.Operation = "merge"
	_, err := fx.intake.Submit(context.Background(), "trace-1", cmd)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestAdminExecutesDirectly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.registry.AddAdmin(ctx, "carol"))
	require.NoError(t, fx.registry.AddApprover(ctx, "alice"))

	out, err := fx.intake.Submit(ctx, "trace-1", createCmd("carol"))
	require.NoError(t, err)
	assert.Equal(t, audit.ModeDirect, out.Mode)
	assert.Equal(t, domain.StatusExecuted, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, int64(500), out.Record.ID)
	assert.Equal(t, 1, fx.invoker.executes)

	// Обход зафиксирован в аудите
	require.Len(t, fx.auditor.events, 1)
	assert.Equal(t, audit.ModeDirect, fx.auditor.events[0].Mode)
	assert.Equal(t, "trace-1", fx.auditor.events[0].TraceID)
}

func TestRegularUserQueuedForApproval(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.registry.AddApprover(ctx, "alice"))
	require.NoError(t, fx.registry.AddApprover(ctx, "bob"))

	out, err := fx.intake.Submit(ctx, "trace-2", createCmd("dave"))
	require.NoError(t, err)
	assert.Equal(t, audit.ModeWorkflow, out.Mode)
	assert.Equal(t, domain.StatusPending, out.Status)
	require.NotEmpty(t, out.RequestID)
	assert.Zero(t, fx.invoker.executes)

	stored, err := fx.store.Get(ctx, out.RequestID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, stored.Approvers)
	assert.Equal(t, "dave", stored.RequesterID)
}

func TestNoApproversDefaultDeny(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.intake.Submit(context.Background(), "trace-3", createCmd("dave"))
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, fx.invoker.executes)

	// Отказ тоже попадает в Audit Trail
	require.Len(t, fx.auditor.events, 1)
	assert.Equal(t, "DENIED", fx.auditor.events[0].Status)
}

func TestUpdateRequiresEntityID(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.registry.AddApprover(context.Background(), "alice"))

	cmd := SubmitCommand{
		RequesterID: "dave",
		Operation:   "update",
		EntityType:  "person",
		Fields:      map[string]string{"title": "CTO"},
	}
	_, err := fx.intake.Submit(context.Background(), "trace-4", cmd)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestDeleteNonexistentTargetRejectedEarly(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.registry.AddApprover(context.Background(), "alice"))

	missing := int64(999)
	cmd := SubmitCommand{
		RequesterID: "dave",
		Operation:   "delete",
		EntityType:  "company",
		EntityID:    &missing,
	}
	_, err := fx.intake.Submit(context.Background(), "trace-5", cmd)
	var nfErr *domain.NotFoundError
	require.ErrorAs(t, err, &nfErr)

	// Запрос не дошел до очереди согласования
	pending, err := fx.store.PendingFor(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUpdateExistingTargetQueued(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.registry.AddApprover(context.Background(), "alice"))

	target := int64(10)
	cmd := SubmitCommand{
		RequesterID: "dave",
		Operation:   "update",
		EntityType:  "person",
		EntityID:    &target,
		Fields:      map[string]string{"title": "CTO"},
	}
	out, err := fx.intake.Submit(context.Background(), "trace-6", cmd)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, out.Status)
}

func TestMappingAttributesAssignee(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.registry.AddAdmin(ctx, "carol"))
	require.NoError(t, fx.registry.SetMapping(ctx, "carol", 777))

	_, err := fx.intake.Submit(ctx, "trace-7", createCmd("carol"))
	require.NoError(t, err)

	got, ok := fx.invoker.lastFlds["assignee_id"]
	require.True(t, ok)
	assert.Equal(t, float64(777), got.Num)
}

func TestExplicitAssigneeNotOverridden(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.registry.AddAdmin(ctx, "carol"))
	require.NoError(t, fx.registry.SetMapping(ctx, "carol", 777))

	cmd := createCmd("carol")
	cmd.Fields["assignee_id"] = "123"
	_, err := fx.intake.Submit(ctx, "trace-8", cmd)
	require.NoError(t, err)

	assert.Equal(t, float64(123), fx.invoker.lastFlds["assignee_id"].Num)
}
