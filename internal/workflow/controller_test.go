package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/service"
	"github.com/Veraticus/claimflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("connection refused")

func newTestStore(t *testing.T) service.Store {
	t.Helper()
	return testutil.NewStore(t, "test")
}

func validDraft(t *testing.T) model.ClaimDraft {
	t.Helper()
	return model.ClaimDraft{
		UserID:        "u1",
		DischargeFile: testutil.WriteDocument(t, "discharge.pdf"),
		BillFile:      testutil.WriteDocument(t, "bill.pdf"),
		HospitalEmail: "h@x.com",
	}
}

type transitionRecorder struct {
	phases []Phase
	mu     sync.Mutex
}

func (r *transitionRecorder) observe(_, to Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, to)
}

func (r *transitionRecorder) seen() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func TestController_SubmitMissingInput(t *testing.T) {
	tests := []struct {
		mutate    func(*model.ClaimDraft)
		name      string
		wantField string
	}{
		{
			name:      "missing user id",
			mutate:    func(d *model.ClaimDraft) { d.UserID = "" },
			wantField: "user_id",
		},
		{
			name:      "missing discharge file",
			mutate:    func(d *model.ClaimDraft) { d.DischargeFile = model.Document{} },
			wantField: "discharge_file",
		},
		{
			name:      "missing bill file",
			mutate:    func(d *model.ClaimDraft) { d.BillFile = model.Document{} },
			wantField: "bill_file",
		},
		{
			name: "bill file does not exist",
			mutate: func(d *model.ClaimDraft) {
				d.BillFile = model.NewDocument(filepath.Join(os.TempDir(), "claimflow-does-not-exist.pdf"))
			},
			wantField: "bill_file",
		},
		{
			name: "policy file given but missing",
			mutate: func(d *model.ClaimDraft) {
				policy := model.NewDocument("")
				d.PolicyFile = &policy
			},
			wantField: "policy_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			mock := NewMockBackend()
			c := New(store, mock, Options{})

			draft := validDraft(t)
			tt.mutate(&draft)

			err := c.Submit(context.Background(), draft)

			var missing *MissingInputError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.wantField, missing.Field)
			assert.Equal(t, 0, mock.TotalCalls())
			assert.Equal(t, PhaseIdle, c.Phase())

			entries := c.Log().Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, model.LogError, entries[0].Kind)

			_, getErr := store.Get(context.Background(), KeyDraft)
			assert.ErrorIs(t, getErr, common.ErrNotFound)
		})
	}
}

type staticIdentity string

func (s staticIdentity) UserID(context.Context) (string, error) {
	if s == "" {
		return "", common.ErrNotLoggedIn
	}
	return string(s), nil
}

type failingIdentity struct{ err error }

func (f failingIdentity) UserID(context.Context) (string, error) {
	return "", f.err
}

func TestController_SubmitIdentityFailure(t *testing.T) {
	diskErr := errors.New("disk I/O error")
	mock := NewMockBackend()
	c := New(newTestStore(t), mock, Options{Identity: failingIdentity{err: diskErr}})

	draft := validDraft(t)
	draft.UserID = ""

	err := c.Submit(context.Background(), draft)
	require.ErrorIs(t, err, diskErr)
	var missing *MissingInputError
	assert.False(t, errors.As(err, &missing))
	assert.Equal(t, 0, mock.TotalCalls())

	entries := c.Log().Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Detail, "disk I/O error")
}

func TestController_SubmitUsesIdentityProvider(t *testing.T) {
	mock := NewMockBackend()
	var identity service.IdentityProvider = staticIdentity("u-from-login")
	c := New(newTestStore(t), mock, Options{Identity: identity})

	draft := validDraft(t)
	draft.UserID = ""

	require.NoError(t, c.Submit(context.Background(), draft))
	snap := c.Snapshot()
	require.NotNil(t, snap.Draft)
	assert.Equal(t, "u-from-login", snap.Draft.UserID)
}

func TestController_ValidationRejectedSkipsEvaluation(t *testing.T) {
	mock := NewMockBackend()
	mock.Validation = model.ValidationResult{IsValid: false, Reason: "not a discharge summary"}
	store := newTestStore(t)
	c := New(store, mock, Options{})

	err := c.Submit(context.Background(), validDraft(t))

	var rejected *ValidationRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "not a discharge summary", rejected.Reason)
	assert.Equal(t, 1, mock.Calls("ValidateDischarge"))
	assert.Equal(t, 0, mock.Calls("EvaluateClaim"))

	snap := c.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, Failure{Step: StepValidation, Reason: "not a discharge summary"}, *snap.Failure)
	require.NotNil(t, snap.Validation)
	assert.False(t, snap.Validation.IsValid)
	assert.Nil(t, snap.Record)
}

func TestController_ValidationTransportError(t *testing.T) {
	mock := NewMockBackend()
	mock.ValidateErr = errBackendDown
	c := New(newTestStore(t), mock, Options{})

	err := c.Submit(context.Background(), validDraft(t))

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, StepValidation, transport.Step)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, 0, mock.Calls("EvaluateClaim"))
	assert.Equal(t, &Failure{Step: StepValidation, Reason: "connection refused"}, c.Snapshot().Failure)
}

func TestController_EvaluationFailurePersistsNothing(t *testing.T) {
	mock := NewMockBackend()
	mock.EvaluateErr = errBackendDown
	store := newTestStore(t)
	c := New(store, mock, Options{})

	err := c.Submit(context.Background(), validDraft(t))

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, StepEvaluation, transport.Step)
	assert.Equal(t, PhaseFailed, c.Phase())
	assert.Nil(t, c.Record())

	_, getErr := store.Get(context.Background(), KeyClaimRecord)
	assert.ErrorIs(t, getErr, common.ErrNotFound)
	assert.Equal(t, 0, mock.Calls("NotifyHospital"))
}

func TestController_FullFlow(t *testing.T) {
	mock := NewMockBackend()
	mock.Statuses = []model.ClaimStatus{model.StatusApproved}
	store := newTestStore(t)
	rec := &transitionRecorder{}
	c := New(store, mock, Options{OnTransition: rec.observe})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))
	assert.Equal(t, PhaseNotified, c.Phase())
	assert.Equal(t, []string{"h@x.com"}, mock.Notifications())

	status, err := c.PollStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, status)
	assert.True(t, c.CanFinalize())

	receipt, err := c.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", receipt.TransactionHash)

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Record())
	assert.False(t, c.CanFinalize())

	for _, key := range claimKeys {
		_, getErr := store.Get(ctx, key)
		assert.ErrorIs(t, getErr, common.ErrNotFound, key)
	}

	assert.Equal(t, []Phase{
		PhaseValidating, PhaseValidated,
		PhaseEvaluating, PhaseEvaluated,
		PhaseNotifying, PhaseNotified,
		PhasePollingStatus,
		PhaseFinalized, PhaseIdle,
	}, rec.seen())

	reloaded, err := Open(ctx, store, NewMockBackend(), Options{})
	require.NoError(t, err)
	assert.Nil(t, reloaded.Record())
	assert.Equal(t, PhaseIdle, reloaded.Phase())
}

func TestController_ResumeAfterEvaluation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewMockBackend()
	c := New(store, first, Options{})

	draft := validDraft(t)
	draft.HospitalEmail = ""
	err := c.Submit(ctx, draft)
	require.ErrorIs(t, err, ErrMissingEmail)
	assert.Equal(t, &Failure{Step: StepMissingEmail, Reason: "hospital email required"}, c.Snapshot().Failure)
	assert.Equal(t, 0, first.Calls("NotifyHospital"))

	// Simulated restart: a new controller over the same durable store.
	second := NewMockBackend()
	resumed, err := Open(ctx, store, second, Options{})
	require.NoError(t, err)

	record := resumed.Record()
	require.NotNil(t, record)
	assert.Equal(t, "c1", record.ClaimID)
	assert.InDelta(t, 5000, record.ClaimableAmount, 0.001)
	assert.Equal(t, PhaseEvaluated, resumed.Phase())
	assert.Equal(t, model.StatusUnknown, resumed.Status())
	assert.Equal(t, 0, second.TotalCalls())

	// Submitting again must not repeat validation or evaluation.
	draft.HospitalEmail = "h@x.com"
	require.NoError(t, resumed.Submit(ctx, draft))
	assert.Equal(t, 0, second.Calls("ValidateDischarge"))
	assert.Equal(t, 0, second.Calls("EvaluateClaim"))
	assert.Equal(t, 1, second.Calls("NotifyHospital"))
	assert.Equal(t, PhaseNotified, resumed.Phase())
}

func TestController_ResumeReconstructsPhase(t *testing.T) {
	ctx := context.Background()
	record := model.ClaimRecord{ClaimID: "c9", ClaimableAmount: 12, Timestamp: time.Now()}

	tests := []struct {
		seed func(t *testing.T, store service.Store)
		name string
		want Phase
	}{
		{
			name: "empty store",
			seed: func(*testing.T, service.Store) {},
			want: PhaseIdle,
		},
		{
			name: "record only",
			seed: func(t *testing.T, store service.Store) {
				require.NoError(t, saveJSON(ctx, store, KeyClaimRecord, record))
			},
			want: PhaseEvaluated,
		},
		{
			name: "record and notification",
			seed: func(t *testing.T, store service.Store) {
				require.NoError(t, saveJSON(ctx, store, KeyClaimRecord, record))
				require.NoError(t, saveJSON(ctx, store, KeyNotification, model.NotificationState{ClaimID: "c9", Sent: true}))
			},
			want: PhaseNotified,
		},
		{
			name: "notification for another claim",
			seed: func(t *testing.T, store service.Store) {
				require.NoError(t, saveJSON(ctx, store, KeyClaimRecord, record))
				require.NoError(t, saveJSON(ctx, store, KeyNotification, model.NotificationState{ClaimID: "old", Sent: true}))
			},
			want: PhaseEvaluated,
		},
		{
			name: "record and status",
			seed: func(t *testing.T, store service.Store) {
				require.NoError(t, saveJSON(ctx, store, KeyClaimRecord, record))
				require.NoError(t, saveJSON(ctx, store, KeyClaimStatus, model.StatusPending))
			},
			want: PhasePollingStatus,
		},
		{
			name: "status without record is ignored",
			seed: func(t *testing.T, store service.Store) {
				require.NoError(t, saveJSON(ctx, store, KeyClaimStatus, model.StatusApproved))
			},
			want: PhaseIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			tt.seed(t, store)

			mock := NewMockBackend()
			c, err := Open(ctx, store, mock, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Phase())
			assert.Equal(t, 0, mock.TotalCalls())
			if tt.want == PhaseIdle {
				assert.False(t, c.CanFinalize())
			}
		})
	}
}

func TestController_LoadCorruptState(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(context.Background(), KeyClaimRecord, []byte("{not json")))

	_, err := Open(context.Background(), store, NewMockBackend(), Options{})
	assert.ErrorIs(t, err, common.ErrDatabaseCorrupted)
}

func TestController_NotifyAtMostOnce(t *testing.T) {
	mock := NewMockBackend()
	store := newTestStore(t)
	c := New(store, mock, Options{})
	ctx := context.Background()

	draft := validDraft(t)
	draft.HospitalEmail = ""
	require.ErrorIs(t, c.Submit(ctx, draft), ErrMissingEmail)

	require.NoError(t, c.Notify(ctx, "h@x.com"))
	require.NoError(t, c.Notify(ctx, "h@x.com"))

	assert.Equal(t, 1, mock.Calls("NotifyHospital"))
	assert.Equal(t, PhaseNotified, c.Phase())
	assert.Equal(t, "h@x.com", c.Snapshot().Draft.HospitalEmail)

	var persisted model.NotificationState
	found, err := loadJSON(ctx, store, KeyNotification, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, persisted.SentFor("c1"))

	// A restarted controller still refuses to notify again.
	resumed, err := Open(ctx, store, mock, Options{})
	require.NoError(t, err)
	require.NoError(t, resumed.Notify(ctx, "other@x.com"))
	assert.Equal(t, 1, mock.Calls("NotifyHospital"))
}

func TestController_NotifyFailureAllowsRetry(t *testing.T) {
	mock := NewMockBackend()
	mock.NotifyErr = errBackendDown
	c := New(newTestStore(t), mock, Options{})
	ctx := context.Background()

	err := c.Submit(ctx, validDraft(t))
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, StepNotify, transport.Step)
	assert.False(t, c.Snapshot().Notification.Sent)
	assert.NotNil(t, c.Record(), "record from the successful evaluation survives")

	mock.NotifyErr = nil
	require.NoError(t, c.Notify(ctx, ""))
	assert.Equal(t, 2, mock.Calls("NotifyHospital"))
	assert.True(t, c.Snapshot().Notification.Sent)
}

func TestController_NotifyWithoutRecord(t *testing.T) {
	mock := NewMockBackend()
	c := New(newTestStore(t), mock, Options{})

	assert.ErrorIs(t, c.Notify(context.Background(), "h@x.com"), ErrNoClaimRecord)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestController_PollStatus(t *testing.T) {
	mock := NewMockBackend()
	mock.Statuses = []model.ClaimStatus{model.StatusPending, model.StatusPending, model.StatusApproved}
	store := newTestStore(t)
	c := New(store, mock, Options{})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))
	assert.False(t, c.CanFinalize(), "finalize disabled before any poll")

	var last model.ClaimStatus
	for i := 0; i < 3; i++ {
		status, err := c.PollStatus(ctx)
		require.NoError(t, err)
		last = status
	}

	assert.Equal(t, model.StatusApproved, last)
	assert.True(t, c.CanFinalize())
	assert.Equal(t, PhasePollingStatus, c.Phase())

	var persisted model.ClaimStatus
	found, err := loadJSON(ctx, store, KeyClaimStatus, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusApproved, persisted)
}

func TestController_PollStatusFailureKeepsPrevious(t *testing.T) {
	mock := NewMockBackend()
	mock.Statuses = []model.ClaimStatus{model.StatusPending}
	mock.StatusErrs = []error{nil, errBackendDown}
	c := New(newTestStore(t), mock, Options{})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))

	status, err := c.PollStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, status)

	status, err = c.PollStatus(ctx)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, model.StatusPending, status)
	assert.Equal(t, model.StatusPending, c.Status())
	assert.Equal(t, PhasePollingStatus, c.Phase())

	entries := c.Log().Entries()
	assert.Equal(t, model.LogError, entries[len(entries)-1].Kind)
}

func TestController_PollStatusWithoutRecord(t *testing.T) {
	mock := NewMockBackend()
	c := New(newTestStore(t), mock, Options{})

	_, err := c.PollStatus(context.Background())
	assert.ErrorIs(t, err, ErrNoClaimRecord)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestController_FinalizeRequiresApproval(t *testing.T) {
	for _, status := range []model.ClaimStatus{model.StatusPending, model.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			mock := NewMockBackend()
			mock.Statuses = []model.ClaimStatus{status}
			store := newTestStore(t)
			c := New(store, mock, Options{})
			ctx := context.Background()

			require.NoError(t, c.Submit(ctx, validDraft(t)))
			_, err := c.PollStatus(ctx)
			require.NoError(t, err)

			before := c.Snapshot()
			_, err = c.Finalize(ctx)
			assert.ErrorIs(t, err, ErrFinalizeNotAllowed)
			assert.Equal(t, 0, mock.Calls("ClaimInsurance"))

			after := c.Snapshot()
			assert.Equal(t, before.Phase, after.Phase)
			assert.Equal(t, before.Record, after.Record)

			_, getErr := store.Get(ctx, KeyClaimRecord)
			assert.NoError(t, getErr)
		})
	}

	t.Run("no record", func(t *testing.T) {
		mock := NewMockBackend()
		c := New(newTestStore(t), mock, Options{})
		_, err := c.Finalize(context.Background())
		assert.ErrorIs(t, err, ErrFinalizeNotAllowed)
		assert.Equal(t, 0, mock.TotalCalls())
	})
}

func TestController_FinalizeDownstreamFailureKeepsState(t *testing.T) {
	mock := NewMockBackend()
	mock.Statuses = []model.ClaimStatus{model.StatusApproved}
	mock.FinalizeErr = errBackendDown
	store := newTestStore(t)
	c := New(store, mock, Options{})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))
	_, err := c.PollStatus(ctx)
	require.NoError(t, err)

	_, err = c.Finalize(ctx)
	var ferr *FinalizeError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, errBackendDown)

	assert.Equal(t, PhasePollingStatus, c.Phase())
	assert.True(t, c.CanFinalize())
	for _, key := range claimKeys {
		_, getErr := store.Get(ctx, key)
		assert.NoError(t, getErr, key)
	}

	mock.FinalizeErr = nil
	_, err = c.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, c.Phase())
}

// flakyDeleteStore fails DeleteAll while failDelete is set.
type flakyDeleteStore struct {
	service.Store
	failDelete bool
}

var errDiskFull = errors.New("database or disk is full")

func (s *flakyDeleteStore) DeleteAll(ctx context.Context, keys ...string) error {
	if s.failDelete {
		return errDiskFull
	}
	return s.Store.DeleteAll(ctx, keys...)
}

func TestController_FinalizeClearFailureNeverPaysTwice(t *testing.T) {
	mock := NewMockBackend()
	mock.Statuses = []model.ClaimStatus{model.StatusApproved}
	store := &flakyDeleteStore{Store: newTestStore(t)}
	c := New(store, mock, Options{})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))
	_, err := c.PollStatus(ctx)
	require.NoError(t, err)

	store.failDelete = true
	receipt, err := c.Finalize(ctx)
	require.ErrorIs(t, err, errDiskFull)
	require.NotNil(t, receipt)
	assert.Equal(t, "0xfeed", receipt.TransactionHash)

	_, err = c.Finalize(ctx)
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, mock.Calls("ClaimInsurance"))

	// A fresh process resumes from the persisted payout marker.
	resumed, err := Open(ctx, store, mock, Options{})
	require.NoError(t, err)

	store.failDelete = false
	receipt, err = resumed.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", receipt.TransactionHash)
	assert.Equal(t, 1, mock.Calls("ClaimInsurance"))
	assert.Equal(t, PhaseIdle, resumed.Phase())

	for _, key := range stateKeys {
		_, getErr := store.Get(ctx, key)
		assert.ErrorIs(t, getErr, common.ErrNotFound, key)
	}
}

func TestController_Reset(t *testing.T) {
	mock := NewMockBackend()
	store := newTestStore(t)
	c := New(store, mock, Options{})
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, validDraft(t)))
	calls := mock.TotalCalls()

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, calls, mock.TotalCalls())
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Snapshot().Draft)

	for _, key := range claimKeys {
		_, getErr := store.Get(ctx, key)
		assert.ErrorIs(t, getErr, common.ErrNotFound, key)
	}

	// After a reset the next submission evaluates afresh.
	require.NoError(t, c.Submit(ctx, validDraft(t)))
	assert.Equal(t, 2, mock.Calls("EvaluateClaim"))
	assert.Equal(t, 2, mock.Calls("NotifyHospital"))
}

func TestController_RefusesConcurrentSteps(t *testing.T) {
	mock := NewMockBackend()
	mock.Delay = 150 * time.Millisecond
	c := New(newTestStore(t), mock, Options{})
	ctx := context.Background()

	draft := validDraft(t)
	done := make(chan error, 1)
	go func() {
		done <- c.Submit(ctx, draft)
	}()

	require.Eventually(t, func() bool { return c.Snapshot().Busy }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Submit(ctx, draft), ErrBusy)
	_, err := c.PollStatus(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Reset(ctx), ErrBusy)

	require.NoError(t, <-done)
	assert.Equal(t, 1, mock.Calls("ValidateDischarge"))
	assert.Equal(t, 1, mock.Calls("EvaluateClaim"))
	assert.False(t, c.Snapshot().Busy)
}

func TestController_LogIsChronological(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	mock := NewMockBackend()
	c := New(newTestStore(t), mock, Options{Now: now})

	require.NoError(t, c.Submit(context.Background(), validDraft(t)))

	entries := c.Log().Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
	}

	kinds := make([]model.LogKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []model.LogKind{
		model.LogInfo, model.LogSuccess,
		model.LogInfo, model.LogSuccess,
		model.LogInfo, model.LogSuccess,
	}, kinds)

	n := c.Log().Len()
	_, _ = c.Finalize(context.Background())
	assert.Len(t, c.Log().Since(n), 1)
}
