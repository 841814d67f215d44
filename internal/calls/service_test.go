package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"voicecall-platform/internal/audit"
	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/elevenlabs"
	"voicecall-platform/internal/poller"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeVendor struct {
	mu        sync.Mutex
	submitted []batchcall.CallBatchRequest
	submitErr error
	statuses  []string
	calls     int
	nextID    int
}

func (f *fakeVendor) SubmitBatchCall(_ context.Context, req batchcall.CallBatchRequest) (elevenlabs.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return elevenlabs.BatchResponse{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.nextID++
	id := "bc_" + string(rune('0'+f.nextID))
	return elevenlabs.BatchResponse{ID: id, Status: "pending", Raw: map[string]any{"id": id, "status": "pending"}}, nil
}

func (f *fakeVendor) GetBatchCallStatus(_ context.Context, batchID string) (elevenlabs.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	s := f.statuses[i]
	return elevenlabs.BatchResponse{ID: batchID, Status: s, Raw: map[string]any{"id": batchID, "status": s}}, nil
}

func (f *fakeVendor) Submitted() []batchcall.CallBatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]batchcall.CallBatchRequest(nil), f.submitted...)
}

// holdScheduler keeps every task parked until it is cancelled.
type holdScheduler struct{}

func (holdScheduler) Wait(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type fixture struct {
	svc    *Service
	vendor *fakeVendor
	repo   *MemoryRepo
	audit  *audit.MemoryRepo
	slots  *LocalSlots

	mu       sync.Mutex
	finished []string
	submits  []error
}

func newFixture(t *testing.T, vendor *fakeVendor, sched poller.Scheduler, slotLimit int) *fixture {
	t.Helper()
	f := &fixture{
		vendor: vendor,
		repo:   NewMemoryRepo(),
		audit:  audit.NewMemoryRepo(),
		slots:  NewLocalSlots(slotLimit),
	}
	opts := []poller.Option{}
	if sched != nil {
		opts = append(opts, poller.WithScheduler(sched))
	}
	p := poller.New(vendor, poller.Config{InitialDelay: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 5}, opts...)

	f.svc = NewService(Options{
		Repo:     f.repo,
		Vendor:   vendor,
		Poller:   p,
		Slots:    f.slots,
		Audit:    audit.NewService(f.audit),
		Defaults: Defaults{AgentID: "agent_default", PhoneNumberID: "phnum_default"},
		Hooks: Hooks{
			OnSubmit: func(err error) {
				f.mu.Lock()
				f.submits = append(f.submits, err)
				f.mu.Unlock()
			},
			OnPollFinish: func(state string) {
				f.mu.Lock()
				f.finished = append(f.finished, state)
				f.mu.Unlock()
			},
		},
		Clock: func() time.Time { return time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, f.svc.Shutdown(ctx))
	})
	return f
}

func (f *fixture) finishedStates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finished...)
}

func sampleInput() SubmitInput {
	return SubmitInput{
		PhoneNumber: "+5491123456789",
		DynamicVariables: map[string]any{
			"nombre_paciente":  "Juan",
			"stock_teorico":    "150",
			"unexpected_field": "x",
		},
		Actor: audit.Actor{UserID: "op1", Role: "operator", IP: "10.0.0.1"},
	}
}

func TestSubmit_PollsToCompletionAndRecords(t *testing.T) {
	vendor := &fakeVendor{statuses: []string{"in_progress", "completed"}}
	f := newFixture(t, vendor, nil, 1)
	ctx := context.Background()

	sub, err := f.svc.Submit(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "bc_1", sub.BatchID)
	assert.Equal(t, []string{"unexpected_field"}, sub.DroppedVariables)

	sent := vendor.Submitted()
	require.Len(t, sent, 1)
	assert.Equal(t, "agent_default", sent[0].AgentID)
	assert.Equal(t, "phnum_default", sent[0].AgentPhoneNumberID)
	assert.Equal(t, "Llamada - 2025-07-14T10:00:00Z", sent[0].CallName)
	assert.Equal(t, batchcall.DynamicVariables{"nombre_paciente": "Juan", "stock_teorico": float64(150)}, sent[0].Recipients[0].DynamicVariables)

	require.Eventually(t, func() bool {
		b, err := f.repo.Get(ctx, "bc_1")
		return err == nil && b.PollState == poller.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	b, err := f.svc.Get(ctx, "bc_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, b.Outcome())
	assert.Equal(t, "completed", b.VendorStatus)
	assert.Equal(t, 2, b.PollAttempts)
	assert.NotEmpty(t, b.LastResponse)

	require.Eventually(t, func() bool { return len(f.svc.ActivePolls()) == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.finishedStates()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"completed"}, f.finishedStates())

	st, err := f.svc.PollState(ctx, "bc_1")
	require.NoError(t, err)
	assert.Equal(t, poller.StateCompleted, st.State)
	require.NotNil(t, st.LastResponse, "finished state should keep the last vendor object")
	assert.Equal(t, "bc_1", st.LastResponse.ID)
	assert.Equal(t, "completed", st.LastResponse.Status)

	evs := f.audit.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventTypeCallSubmitted, evs[0].Type)
	assert.Equal(t, "bc_1", evs[0].BatchID)

	ok, err := f.slots.Acquire(ctx, "agent_default")
	require.NoError(t, err)
	assert.True(t, ok, "slot should have been released")
	require.NoError(t, f.slots.Release(ctx, "agent_default"))
}

func TestSubmit_ValidationErrorNeverReachesVendor(t *testing.T) {
	vendor := &fakeVendor{statuses: []string{"completed"}}
	f := newFixture(t, vendor, nil, 5)

	in := sampleInput()
	in.PhoneNumber = "1234567890"
	_, err := f.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, batchcall.ErrInvalidPhoneFormat)
	assert.Empty(t, vendor.Submitted())
	assert.Empty(t, f.submits, "validation errors are not counted as submissions")
}

func TestSubmit_VendorErrorReleasesSlot(t *testing.T) {
	vendor := &fakeVendor{submitErr: &elevenlabs.VendorError{Op: elevenlabs.OpSubmit, StatusCode: 422, Body: "bad"}}
	f := newFixture(t, vendor, nil, 1)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, sampleInput())
	assert.ErrorIs(t, err, elevenlabs.ErrVendor)

	ok, err := f.slots.Acquire(ctx, "agent_default")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.slots.Release(ctx, "agent_default"))

	_, err = f.repo.Get(ctx, "bc_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmit_TooManyActivePolls(t *testing.T) {
	vendor := &fakeVendor{statuses: []string{"in_progress"}}
	f := newFixture(t, vendor, holdScheduler{}, 1)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, sampleInput())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, sampleInput())
	assert.ErrorIs(t, err, ErrTooManyPolls)
	assert.Len(t, vendor.Submitted(), 1)

	_, err = f.svc.Cancel(ctx, audit.Actor{UserID: "admin"}, first.BatchID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := f.svc.Submit(ctx, sampleInput())
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestCancel_StopsPollingWithUnknownOutcome(t *testing.T) {
	vendor := &fakeVendor{statuses: []string{"in_progress"}}
	f := newFixture(t, vendor, holdScheduler{}, 5)
	ctx := context.Background()

	sub, err := f.svc.Submit(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, []string{sub.BatchID}, f.svc.ActivePolls())

	st, err := f.svc.Cancel(ctx, audit.Actor{UserID: "op1", Role: "operator"}, sub.BatchID)
	require.NoError(t, err)
	assert.Equal(t, poller.StateAbandoned, st.State)
	assert.Equal(t, poller.ReasonStopped, st.Reason)

	b, err := f.svc.Get(ctx, sub.BatchID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, b.Outcome())

	_, err = f.svc.Cancel(ctx, audit.Actor{}, sub.BatchID)
	assert.ErrorIs(t, err, ErrNotPolling)

	_, err = f.svc.Cancel(ctx, audit.Actor{}, "bc_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var types []audit.EventType
	for _, e := range f.audit.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []audit.EventType{audit.EventTypeCallSubmitted, audit.EventTypePollCancelled}, types)
}

func TestShutdownStopsActiveTasks(t *testing.T) {
	vendor := &fakeVendor{statuses: []string{"in_progress"}}
	f := newFixture(t, vendor, holdScheduler{}, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, sampleInput())
		require.NoError(t, err)
	}
	assert.Len(t, f.svc.ActivePolls(), 3)

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(sctx))
	assert.Empty(t, f.svc.ActivePolls())
	assert.Len(t, f.finishedStates(), 3)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, &fakeVendor{statuses: []string{"completed"}}, nil, 5)

	in := SubmitInput{
		CallName: "Recordatorio",
		Recipients: []RecipientInput{
			{PhoneNumber: "+5491100000001", DynamicVariables: map[string]any{"producto": "Kit", "foo": 1}},
			{PhoneNumber: "+5491100000002", DynamicVariables: "not an object"},
		},
	}
	p, err := f.svc.Preview(in)
	require.NoError(t, err)
	assert.Equal(t, "Recordatorio", p.Request.CallName)
	require.Len(t, p.Request.Recipients, 2)
	assert.Equal(t, batchcall.DynamicVariables{"producto": "Kit"}, p.Request.Recipients[0].DynamicVariables)
	assert.Empty(t, p.Request.Recipients[1].DynamicVariables)
	assert.Equal(t, []string{"foo"}, p.DroppedVariables)

	in.Recipients[1].PhoneNumber = "+0123"
	_, err = f.svc.Preview(in)
	var pe *batchcall.InvalidPhoneFormatError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "recipients.1.phone_number", pe.Field)
}

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []poller.State{poller.StateCompleted, poller.StateAbandoned, poller.StateCompleted} {
		require.NoError(t, repo.Create(ctx, BatchCall{
			ID:        "bc_" + string(rune('a'+i)),
			PollState: st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.Error(t, repo.Create(ctx, BatchCall{ID: "bc_a"}))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "bc_c", all[0].ID)

	done, err := repo.List(ctx, ListFilter{State: poller.StateCompleted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "bc_c", done[0].ID)

	empty, err := repo.List(ctx, ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.ErrorIs(t, repo.UpdatePoll(ctx, "nope", PollUpdate{}), ErrNotFound)
}
