package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"voicecall-platform/internal/audit"
	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/elevenlabs"
	"voicecall-platform/internal/poller"
)

// ErrNotPolling is returned by Cancel when no task is running for the batch.
var ErrNotPolling = errors.New("batch is not being polled")

// Vendor is the slice of the ElevenLabs client the service drives.
type Vendor interface {
	SubmitBatchCall(ctx context.Context, req batchcall.CallBatchRequest) (elevenlabs.BatchResponse, error)
	GetBatchCallStatus(ctx context.Context, batchID string) (elevenlabs.BatchResponse, error)
}

// Defaults fill in agent fields the operator leaves empty.
type Defaults struct {
	AgentID       string
	PhoneNumberID string
}

// Hooks are optional observation callbacks (metrics).
type Hooks struct {
	OnSubmit     func(err error)
	OnPollStart  func()
	OnPollFinish func(state string)
}

type Options struct {
	Repo     Repository
	Vendor   Vendor
	Poller   *poller.Poller
	Slots    SlotLimiter
	Audit    *audit.Service
	Defaults Defaults
	Hooks    Hooks
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service owns the submit, poll and record flow for batch calls.
//
// Polling tasks belong to the service, not to the HTTP request that started
// them. Shutdown stops all of them.
type Service struct {
	repo     Repository
	vendor   Vendor
	poller   *poller.Poller
	slots    SlotLimiter
	audit    *audit.Service
	defaults Defaults
	hooks    Hooks
	log      *slog.Logger
	clock    func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]*poller.Handle
}

func NewService(opts Options) *Service {
	s := &Service{
		repo:     opts.Repo,
		vendor:   opts.Vendor,
		poller:   opts.Poller,
		slots:    opts.Slots,
		audit:    opts.Audit,
		defaults: opts.Defaults,
		hooks:    opts.Hooks,
		log:      opts.Logger,
		clock:    opts.Clock,
		active:   make(map[string]*poller.Handle),
	}
	if s.repo == nil {
		s.repo = NewMemoryRepo()
	}
	if s.poller == nil {
		s.poller = poller.New(s.vendor, poller.Config{})
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	return s
}

// RecipientInput is one destination in a multi-recipient submission.
type RecipientInput struct {
	PhoneNumber      string `json:"phone_number"`
	DynamicVariables any    `json:"dynamic_variables"`
}

// SubmitInput is what the operator sends. A single call uses PhoneNumber and
// DynamicVariables; Recipients takes precedence when non-empty.
type SubmitInput struct {
	CallName           string           `json:"call_name"`
	AgentID            string           `json:"agent_id"`
	AgentPhoneNumberID string           `json:"agent_phone_number_id"`
	PhoneNumber        string           `json:"phone_number"`
	DynamicVariables   any              `json:"dynamic_variables"`
	Recipients         []RecipientInput `json:"recipients"`
	ScheduledTimeUnix  *int64           `json:"scheduled_time_unix"`

	Actor audit.Actor `json:"-"`
}

// UnmarshalJSON also accepts the camelCase names the dashboard's test form
// sends. The snake_case field wins when both are present.
func (in *SubmitInput) UnmarshalJSON(b []byte) error {
	type plain SubmitInput
	var aux struct {
		plain
		CallNameAlias           string `json:"callName"`
		AgentIDAlias            string `json:"agentId"`
		AgentPhoneNumberIDAlias string `json:"agentPhoneNumberId"`
		PhoneNumberAlias        string `json:"phoneNumber"`
		Variables               any    `json:"variables"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*in = SubmitInput(aux.plain)
	if in.CallName == "" {
		in.CallName = aux.CallNameAlias
	}
	if in.AgentID == "" {
		in.AgentID = aux.AgentIDAlias
	}
	if in.AgentPhoneNumberID == "" {
		in.AgentPhoneNumberID = aux.AgentPhoneNumberIDAlias
	}
	if in.PhoneNumber == "" {
		in.PhoneNumber = aux.PhoneNumberAlias
	}
	if in.DynamicVariables == nil {
		in.DynamicVariables = aux.Variables
	}
	return nil
}

// Preview is the dry-run result: what would be sent and what was dropped.
type Preview struct {
	Request          batchcall.CallBatchRequest `json:"payload"`
	DroppedVariables []string                   `json:"dropped_variables"`
}

// Submission is returned as soon as the vendor accepts the batch.
type Submission struct {
	BatchID          string                   `json:"batch_id"`
	Response         elevenlabs.BatchResponse `json:"response"`
	DroppedVariables []string                 `json:"dropped_variables"`
	Poll             poller.PollState         `json:"poll"`
}

// Preview validates in and returns the request without contacting the vendor.
func (s *Service) Preview(in SubmitInput) (Preview, error) {
	req, dropped, err := s.build(in)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Request: req, DroppedVariables: dropped}, nil
}

func (s *Service) build(in SubmitInput) (batchcall.CallBatchRequest, []string, error) {
	d := batchcall.Draft{
		CallName:           in.CallName,
		AgentID:            firstNonEmpty(in.AgentID, s.defaults.AgentID),
		AgentPhoneNumberID: firstNonEmpty(in.AgentPhoneNumberID, s.defaults.PhoneNumberID),
		ScheduledTimeUnix:  in.ScheduledTimeUnix,
	}
	if d.CallName == "" {
		d.CallName = "Llamada - " + s.clock().UTC().Format(time.RFC3339)
	}

	droppedSet := map[string]struct{}{}
	addDropped := func(raw any) {
		for _, k := range batchcall.DroppedVariables(raw) {
			droppedSet[k] = struct{}{}
		}
	}
	if len(in.Recipients) > 0 {
		for _, r := range in.Recipients {
			d.Recipients = append(d.Recipients, batchcall.Recipient{
				PhoneNumber:      r.PhoneNumber,
				DynamicVariables: batchcall.NormalizeDynamicVariables(r.DynamicVariables),
			})
			addDropped(r.DynamicVariables)
		}
	} else {
		d.Recipients = batchcall.SingleRecipient(in.PhoneNumber, batchcall.NormalizeDynamicVariables(in.DynamicVariables))
		addDropped(in.DynamicVariables)
	}

	req, err := batchcall.BuildRequest(d)
	if err != nil {
		return batchcall.CallBatchRequest{}, nil, err
	}
	dropped := make([]string, 0, len(droppedSet))
	for k := range droppedSet {
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return req, dropped, nil
}

// Submit validates and sends the batch, records it and starts polling in the
// background. It returns once the vendor has accepted the batch.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (sub Submission, err error) {
	defer func() {
		if s.hooks.OnSubmit != nil && !batchcall.IsValidation(err) {
			s.hooks.OnSubmit(err)
		}
	}()

	req, dropped, err := s.build(in)
	if err != nil {
		return Submission{}, err
	}
	log := s.log.With("component", "calls", "agent_id", req.AgentID)
	if len(dropped) > 0 {
		log.Info("dropping unknown dynamic variables", "dropped", dropped)
	}

	slotKey := req.AgentID
	acquired := false
	if s.slots != nil {
		ok, err := s.slots.Acquire(ctx, slotKey)
		switch {
		case err != nil:
			// The cap protects the vendor from load; a cache outage should not
			// block operators.
			log.Warn("active-poll cap unavailable, continuing without it", "err", err)
		case !ok:
			return Submission{}, ErrTooManyPolls
		default:
			acquired = true
		}
	}
	release := func() {
		if !acquired {
			return
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.slots.Release(rctx, slotKey); err != nil {
			log.Warn("release active-poll slot failed", "err", err)
		}
	}

	resp, err := s.vendor.SubmitBatchCall(ctx, req)
	if err != nil {
		release()
		log.Error("batch submission failed", "err", err)
		return Submission{}, err
	}
	log = log.With("batch_id", resp.ID)
	log.Info("batch submitted", "status", resp.Status, "recipients", len(req.Recipients))

	now := s.clock().UTC()
	rec := BatchCall{
		ID:            resp.ID,
		CallName:      req.CallName,
		AgentID:       req.AgentID,
		PhoneNumberID: req.AgentPhoneNumberID,
		Recipients:    req.Recipients,
		VendorStatus:  resp.Status,
		PollState:     poller.StateInitiated,
		SubmittedBy:   in.Actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ScheduledTimeUnix != nil {
		t := time.Unix(*req.ScheduledTimeUnix, 0).UTC()
		rec.ScheduledAt = &t
	}
	// The vendor already accepted the batch. A failed insert must not turn into
	// an error the operator would answer by resubmitting.
	if err := s.repo.Create(ctx, rec); err != nil {
		log.Error("persist batch record failed", "err", err)
	}

	h := s.startPolling(resp.ID, release)

	if s.audit != nil {
		if err := s.audit.LogCallSubmitted(context.WithoutCancel(ctx), in.Actor, resp.ID, len(req.Recipients), dropped); err != nil {
			log.Warn("audit append failed", "err", err)
		}
	}

	return Submission{
		BatchID:          resp.ID,
		Response:         resp,
		DroppedVariables: dropped,
		Poll:             h.Snapshot(),
	}, nil
}

func (s *Service) startPolling(batchID string, release func()) *poller.Handle {
	log := s.log.With("component", "calls", "batch_id", batchID)
	if s.hooks.OnPollStart != nil {
		s.hooks.OnPollStart()
	}

	h := s.poller.Start(s.baseCtx, batchID, func(st poller.PollState) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), 5*time.Second)
		defer cancel()
		if err := s.repo.UpdatePoll(uctx, batchID, pollUpdateFrom(st, s.clock().UTC())); err != nil {
			log.Warn("persist poll state failed", "state", st.State, "err", err)
		}
	})

	s.mu.Lock()
	s.active[batchID] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-h.Done()

		s.mu.Lock()
		if s.active[batchID] == h {
			delete(s.active, batchID)
		}
		s.mu.Unlock()

		release()
		final := h.Snapshot()
		if s.hooks.OnPollFinish != nil {
			s.hooks.OnPollFinish(string(final.State))
		}
		if final.State == poller.StateAbandoned {
			log.Warn("batch outcome unknown", "reason", final.Reason, "attempts", final.AttemptsMade)
		}
	}()
	return h
}

// Status queries the vendor directly.
func (s *Service) Status(ctx context.Context, batchID string) (elevenlabs.BatchResponse, error) {
	return s.vendor.GetBatchCallStatus(ctx, batchID)
}

// PollState returns the live task state, or the last persisted one once the
// task has finished.
func (s *Service) PollState(ctx context.Context, batchID string) (poller.PollState, error) {
	s.mu.Lock()
	h, ok := s.active[batchID]
	s.mu.Unlock()
	if ok {
		return h.Snapshot(), nil
	}

	b, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return poller.PollState{}, err
	}
	st := poller.PollState{
		BatchID:      b.ID,
		State:        b.PollState,
		AttemptsMade: b.PollAttempts,
		Reason:       b.PollReason,
		LastError:    b.LastError,
		StartedAt:    b.CreatedAt,
		FinishedAt:   b.FinishedAt,
	}
	if len(b.LastResponse) > 0 {
		var resp elevenlabs.BatchResponse
		if err := json.Unmarshal(b.LastResponse, &resp); err != nil {
			return poller.PollState{}, fmt.Errorf("decode last response of %s: %w", b.ID, err)
		}
		st.LastResponse = &resp
	}
	return st, nil
}

// Cancel stops the polling task for batchID and waits for it to finish. The
// vendor batch itself keeps running.
func (s *Service) Cancel(ctx context.Context, actor audit.Actor, batchID string) (poller.PollState, error) {
	s.mu.Lock()
	h, ok := s.active[batchID]
	s.mu.Unlock()
	if !ok {
		if _, err := s.repo.Get(ctx, batchID); err != nil {
			return poller.PollState{}, err
		}
		return poller.PollState{}, ErrNotPolling
	}

	h.Cancel()
	select {
	case <-h.Done():
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
	s.mu.Lock()
	if s.active[batchID] == h {
		delete(s.active, batchID)
	}
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.LogPollCancelled(context.WithoutCancel(ctx), actor, batchID); err != nil {
			s.log.Warn("audit append failed", "batch_id", batchID, "err", err)
		}
	}
	return h.Snapshot(), nil
}

// ActivePolls returns the ids currently being polled, sorted.
func (s *Service) ActivePolls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]BatchCall, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, batchID string) (BatchCall, error) {
	return s.repo.Get(ctx, batchID)
}

// Shutdown stops every polling task and waits for them to record their final
// state, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("calls: shutdown: %w", ctx.Err())
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
