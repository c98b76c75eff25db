// Package hydration drives a journey machine from the authoritative store.
// One goroutine owns the machine; feed documents and local intents are
// serialized through it. Backend calls run off-loop, one at a time in issue
// order, with their results posted back as events.
package hydration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"onboarding/internal/journey/machine"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/service"
	"onboarding/internal/journey/steps"
	"onboarding/internal/journey/upload"
	dErrors "onboarding/pkg/domain-errors"
)

// ErrStopped is returned by intents issued after Stop.
var ErrStopped = errors.New("hydration adapter stopped")

// Backend is the persistence protocol as seen by a client.
type Backend interface {
	EnsureJourney(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
	StartJourney(ctx context.Context, userID uuid.UUID, persona models.Persona) (*models.Journey, error)
	SaveStep(ctx context.Context, userID uuid.UUID, stateValue string, patch map[string]any) (*service.SaveResult, error)
	SubmitJourney(ctx context.Context, userID uuid.UUID, patch map[string]any) (*models.Journey, error)
	GenerateDocumentUploadURL(ctx context.Context, userID uuid.UUID) (upload.Location, error)
	AttachDocument(ctx context.Context, userID uuid.UUID, token, label string) (*models.Journey, error)
	Resubmit(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
}

// Feed delivers every written document for a user.
type Feed interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan *models.Journey, func())
}

// View is the machine snapshot plus warnings from the last confirmed save.
type View struct {
	machine.Snapshot
	Warnings []string
}

type Adapter struct {
	userID  uuid.UUID
	backend Backend
	feed    Feed
	logger  *slog.Logger

	// owned by the loop goroutine once Start returns
	m        *machine.Machine
	warnings []string

	inbox   chan func()
	updates chan View
	done    chan struct{}
	cancel  context.CancelFunc
	saveCtx context.Context

	mu   sync.RWMutex
	view View

	// saves waiting for the backend, in issue order
	qmu      sync.Mutex
	queue    []queuedSave
	draining bool
}

type queuedSave struct {
	token uint64
	call  backendCall
}

func New(userID uuid.UUID, backend Backend, feed Feed, logger *slog.Logger) *Adapter {
	return &Adapter{
		userID:  userID,
		backend: backend,
		feed:    feed,
		logger:  logger,
		m:       machine.New(),
		inbox:   make(chan func()),
		updates: make(chan View, 1),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the feed, ensures the journey exists and hydrates
// from it, then runs the event loop until ctx ends or Stop is called.
// Saves keep running after either; they use a context detached from ctx.
func (a *Adapter) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	docs, unsubscribe := a.feed.Subscribe(loopCtx, a.userID)

	j, err := a.backend.EnsureJourney(ctx, a.userID)
	if err != nil {
		unsubscribe()
		cancel()
		return err
	}
	a.cancel = cancel
	a.saveCtx = context.WithoutCancel(ctx)
	a.m.Hydrate(j)
	a.emit()

	go a.loop(loopCtx, docs, unsubscribe)
	return nil
}

// Stop ends the event loop and waits for it to exit.
func (a *Adapter) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (a *Adapter) loop(ctx context.Context, docs <-chan *models.Journey, unsubscribe func()) {
	defer close(a.done)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-docs:
			if !ok {
				docs = nil
				continue
			}
			a.m.Hydrate(j)
		case fn := <-a.inbox:
			fn()
		}
		a.emit()
	}
}

func (a *Adapter) emit() {
	v := View{Snapshot: a.m.Snapshot(), Warnings: append([]string(nil), a.warnings...)}
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
	select {
	case <-a.updates:
	default:
	}
	a.updates <- v
}

// Snapshot returns the latest view.
func (a *Adapter) Snapshot() View {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view
}

// Updates delivers the newest view after each processed event. Views that
// are not read before the next one is produced are replaced.
func (a *Adapter) Updates() <-chan View {
	return a.updates
}

// do runs fn on the loop goroutine and returns its result.
func (a *Adapter) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case a.inbox <- func() { reply <- fn() }:
		return <-reply
	case <-a.done:
		return ErrStopped
	}
}

type backendCall func(ctx context.Context) (*models.Journey, []string, error)

// intent applies prepare's optimistic change on the loop, issues a save
// token, and queues call behind every save issued before it.
func (a *Adapter) intent(prepare func(m *machine.Machine) (machine.SaveRequest, error), call backendCall) error {
	return a.do(func() error {
		req, err := prepare(a.m)
		if err != nil {
			return err
		}
		token := a.m.BeginSave(req)
		a.warnings = nil
		a.enqueue(queuedSave{token: token, call: call})
		return nil
	})
}

func (a *Adapter) enqueue(q queuedSave) {
	a.qmu.Lock()
	defer a.qmu.Unlock()
	a.queue = append(a.queue, q)
	if !a.draining {
		a.draining = true
		go a.drain()
	}
}

// drain runs queued saves one by one. A failed save abandons the saves
// queued behind it: they were issued against the optimistic state the
// failure just took back.
func (a *Adapter) drain() {
	for {
		a.qmu.Lock()
		if len(a.queue) == 0 {
			a.draining = false
			a.qmu.Unlock()
			return
		}
		next := a.queue[0]
		a.queue = a.queue[1:]
		a.qmu.Unlock()

		j, warnings, err := next.call(a.saveCtx)
		if err != nil {
			a.qmu.Lock()
			abandoned := len(a.queue)
			a.queue = nil
			a.qmu.Unlock()
			if abandoned > 0 {
				a.logger.Warn("abandoning saves queued behind a failed save",
					"user_id", a.userID,
					"token", next.token,
					"abandoned", abandoned,
				)
			}
		}
		_ = a.do(func() error {
			a.settle(next.token, j, warnings, err)
			return nil
		})
	}
}

func (a *Adapter) settle(token uint64, j *models.Journey, warnings []string, err error) {
	if err != nil {
		if a.m.FailSave(token, err) {
			a.logger.Warn("journey save failed",
				"user_id", a.userID,
				"token", token,
				"latest", a.m.LatestToken(),
				"error", err,
			)
		}
		return
	}
	if token != a.m.LatestToken() {
		a.logger.Debug("save confirmed, waiting for later saves",
			"user_id", a.userID,
			"token", token,
			"latest", a.m.LatestToken(),
		)
		return
	}
	a.warnings = warnings
	a.m.Hydrate(j)
}

func journeyOnly(fn func(ctx context.Context) (*models.Journey, error)) backendCall {
	return func(ctx context.Context) (*models.Journey, []string, error) {
		j, err := fn(ctx)
		return j, nil, err
	}
}

// SelectPersona starts the journey as p.
func (a *Adapter) SelectPersona(p models.Persona) error {
	first, ok := steps.First(p)
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "persona %q is not selectable", p)
	}
	return a.intent(func(m *machine.Machine) (machine.SaveRequest, error) {
		if err := m.Advance(first.String()); err != nil {
			return machine.SaveRequest{}, err
		}
		return machine.SaveRequest{StateValue: first.String()}, nil
	}, journeyOnly(func(ctx context.Context) (*models.Journey, error) {
		return a.backend.StartJourney(ctx, a.userID, p)
	}))
}

// SaveStep saves the data of the step named by stateValue and moves the
// display to the step after it.
func (a *Adapter) SaveStep(stateValue string, patch map[string]any) error {
	saved, err := steps.Parse(stateValue)
	if err != nil {
		return err
	}
	target := saved
	if next, ok := steps.Next(saved); ok {
		target = next
	}
	return a.intent(func(m *machine.Machine) (machine.SaveRequest, error) {
		if err := m.Advance(target.String()); err != nil {
			return machine.SaveRequest{}, err
		}
		return machine.SaveRequest{StateValue: target.String()}, nil
	}, func(ctx context.Context) (*models.Journey, []string, error) {
		res, err := a.backend.SaveStep(ctx, a.userID, stateValue, patch)
		if err != nil {
			return nil, nil, err
		}
		return res.Journey, res.Warnings, nil
	})
}

// Submit sends a journey on its review step for admin review.
func (a *Adapter) Submit(patch map[string]any) error {
	return a.intent(func(m *machine.Machine) (machine.SaveRequest, error) {
		state := m.State()
		if !state.IsStep() || !steps.IsReview(state.Step) {
			return machine.SaveRequest{}, dErrors.New(dErrors.CodeInvalidState, "only the review step can be submitted")
		}
		m.SetStatus(models.StatusAwaitingAdmin)
		return machine.SaveRequest{StateValue: state.String(), Status: models.StatusAwaitingAdmin}, nil
	}, journeyOnly(func(ctx context.Context) (*models.Journey, error) {
		return a.backend.SubmitJourney(ctx, a.userID, patch)
	}))
}

func requireDocuments(m *machine.Machine) error {
	state := m.State()
	if !state.IsStep() || !steps.IsDocuments(state.Step) {
		return dErrors.New(dErrors.CodeInvalidState, "documents are only accepted on the documents step")
	}
	return nil
}

// UploadURL asks for a signed upload location. It is not a save and does
// not mark the view busy.
func (a *Adapter) UploadURL(ctx context.Context) (upload.Location, error) {
	if err := a.do(func() error { return requireDocuments(a.m) }); err != nil {
		return upload.Location{}, err
	}
	return a.backend.GenerateDocumentUploadURL(ctx, a.userID)
}

// AttachDocument records an uploaded document on the documents step.
func (a *Adapter) AttachDocument(token, label string) error {
	return a.intent(func(m *machine.Machine) (machine.SaveRequest, error) {
		if err := requireDocuments(m); err != nil {
			return machine.SaveRequest{}, err
		}
		return machine.SaveRequest{StateValue: m.State().String()}, nil
	}, journeyOnly(func(ctx context.Context) (*models.Journey, error) {
		return a.backend.AttachDocument(ctx, a.userID, token, label)
	}))
}

// Resubmit reopens a rejected journey on its review step.
func (a *Adapter) Resubmit() error {
	return a.intent(func(m *machine.Machine) (machine.SaveRequest, error) {
		if m.State().Kind != machine.KindRejected {
			return machine.SaveRequest{}, dErrors.New(dErrors.CodeInvalidState, "only a rejected journey can be resubmitted")
		}
		review, ok := steps.Review(m.Snapshot().Persona)
		if !ok {
			return machine.SaveRequest{}, dErrors.New(dErrors.CodeInvalidState, "journey has no persona flow")
		}
		return machine.SaveRequest{StateValue: review.String(), Status: models.StatusDraft}, nil
	}, journeyOnly(func(ctx context.Context) (*models.Journey, error) {
		return a.backend.Resubmit(ctx, a.userID)
	}))
}
