// Package engine is the request orchestrator behind the decision console.
//
// An Engine owns the ticket draft and two request slots, one for decide and
// one for the history listing. Calls may overlap; each slot keeps only the
// outcome of its newest invocation. Decide failures are shown to the user,
// history failures are logged and otherwise ignored so the last good listing
// stays on screen.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"sentinel/internal/client"
	"sentinel/internal/domain"
	"sentinel/internal/state"
)

// FallbackMessage is shown when a failure carries no text of its own.
const FallbackMessage = "Something went wrong"

// DefaultHistoryLimit is the page size of the initial and post-decide
// refreshes. It is fixed; Options.HistoryLimit only sizes Refresh.
const DefaultHistoryLimit = 20

// ErrNotSubmittable is returned by Submit when the draft fails the gate.
var ErrNotSubmittable = errors.New("ticket text is too short to submit")

// Service is the Decision Service as seen by the engine.
type Service interface {
	Decide(ctx context.Context, ticketText string) (domain.DecisionResult, error)
	History(ctx context.Context, limit int) ([]domain.HistoryItem, error)
}

type Options struct {
	// HistoryLimit is the page size of user-triggered Refresh calls.
	HistoryLimit int
	Logger       *log.Logger
	// OnChange is called, outside the engine lock, after every state
	// transition. It may be called from any goroutine.
	OnChange func()
}

type Engine struct {
	svc      Service
	limit    int
	logger   *log.Logger
	onChange func()

	mu      sync.Mutex
	text    string
	decide  *state.Slot[domain.DecisionResult]
	history *state.Slot[[]domain.HistoryItem]
	items   []domain.HistoryItem

	bg sync.WaitGroup
}

// Snapshot is a consistent copy of everything a view needs.
type Snapshot struct {
	Text      string
	CanSubmit bool
	// CanDecide additionally requires that no decide is in flight.
	CanDecide bool
	Decide    state.RequestState[domain.DecisionResult]
	History   state.RequestState[[]domain.HistoryItem]
	// Items is the last successfully loaded history, newest first.
	Items []domain.HistoryItem
}

func New(svc Service, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{
		svc:      svc,
		limit:    opts.HistoryLimit,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		decide:   state.NewSlot[domain.DecisionResult](state.Surface),
		history:  state.NewSlot[[]domain.HistoryItem](state.Absorb),
		items:    []domain.HistoryItem{},
	}
}

// SetText replaces the draft as typed; no trimming, no length cap.
func (e *Engine) SetText(s string) {
	e.mu.Lock()
	e.text = s
	e.mu.Unlock()
}

func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *Engine) CanSubmit() bool {
	return domain.Submittable(e.Text())
}

// Start kicks off the initial history load in the background.
func (e *Engine) Start(ctx context.Context) {
	e.spawn(ctx, func(ctx context.Context) {
		_, _ = e.RefreshHistory(ctx, DefaultHistoryLimit)
	})
}

// Refresh reloads the listing with the configured page size.
func (e *Engine) Refresh(ctx context.Context) ([]domain.HistoryItem, error) {
	return e.RefreshHistory(ctx, e.limit)
}

// Wait blocks until background refreshes started so far have settled.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Submit decides the current draft if it passes the gate. A rejected draft
// leaves every slot untouched.
func (e *Engine) Submit(ctx context.Context) (domain.DecisionResult, error) {
	text := e.Text()
	if !domain.Submittable(text) {
		return domain.DecisionResult{}, ErrNotSubmittable
	}
	return e.Decide(ctx, text)
}

// Decide submits ticketText and records the outcome in the decide slot,
// unless a newer Decide started meanwhile. A recorded success schedules a
// history refresh whose outcome never touches the decide slot.
func (e *Engine) Decide(ctx context.Context, ticketText string) (domain.DecisionResult, error) {
	e.mu.Lock()
	gen := e.decide.Begin()
	e.mu.Unlock()
	e.changed()

	res, err := guard(func() (domain.DecisionResult, error) {
		return e.svc.Decide(ctx, ticketText)
	})

	e.mu.Lock()
	var applied bool
	if err != nil {
		applied = e.decide.Fail(gen, ErrorMessage(err))
	} else {
		applied = e.decide.Succeed(gen, res)
	}
	e.mu.Unlock()
	if !applied {
		e.logger.Printf("decide: discarded stale result (generation %d)", gen)
		return res, err
	}
	e.changed()

	if err == nil {
		e.spawn(ctx, func(ctx context.Context) {
			_, _ = e.RefreshHistory(ctx, DefaultHistoryLimit)
		})
	}
	return res, err
}

// RefreshHistory reloads the listing. On success the snapshot is replaced;
// on failure the previous snapshot stays and the error is only logged and
// returned to the caller.
func (e *Engine) RefreshHistory(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	e.mu.Lock()
	gen := e.history.Begin()
	e.mu.Unlock()
	e.changed()

	items, err := guard(func() ([]domain.HistoryItem, error) {
		return e.svc.History(ctx, limit)
	})
	if err == nil && items == nil {
		items = []domain.HistoryItem{}
	}

	e.mu.Lock()
	var applied bool
	if err != nil {
		applied = e.history.Fail(gen, ErrorMessage(err))
	} else if applied = e.history.Succeed(gen, items); applied {
		e.items = items
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Printf("history: refresh failed: %v", err)
	}
	if !applied {
		e.logger.Printf("history: discarded stale result (generation %d)", gen)
		return items, err
	}
	e.changed()
	return items, err
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	items := make([]domain.HistoryItem, len(e.items))
	copy(items, e.items)
	d := e.decide.State()
	canSubmit := domain.Submittable(e.text)
	return Snapshot{
		Text:      e.text,
		CanSubmit: canSubmit,
		CanDecide: canSubmit && !d.Loading(),
		Decide:    d,
		History:   e.history.State(),
		Items:     items,
	}
}

// ErrorMessage renders err for the user. Service-reported failures read
// "code: message (detail)"; anything else uses its own text, or
// FallbackMessage when it has none.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *client.ServiceError
	if errors.As(err, &se) {
		return se.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackMessage
}

func (e *Engine) spawn(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(ctx)
	}()
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

// guard turns a panicking service call into an error so every call settles.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decision service call panicked: %v", r)
		}
	}()
	return fn()
}
