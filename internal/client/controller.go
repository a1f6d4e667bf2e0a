package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultDebounce = 400 * time.Millisecond
	saveTimeout     = 15 * time.Second
)

var ErrUnknownPrompt = errors.New("unknown prompt key")

type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// State is the local working copy of one journal. It is also the shape
// persisted by LocalStore.
type State struct {
	Responses   map[string]string `json:"responses"`
	ActiveStep  int               `json:"activeStep"`
	Todo        bool              `json:"todo"`
	SkippedAt   *string           `json:"skippedAt,omitempty"`
	LastUpdated *string           `json:"lastUpdated,omitempty"`
}

// DefaultState has an empty response for every prompt and the cursor on
// the first step.
func DefaultState(prompts []Prompt) State {
	responses := make(map[string]string, len(prompts))
	for _, p := range prompts {
		responses[p.Key] = ""
	}
	return State{Responses: responses}
}

func (s State) Clone() State {
	clone := s
	clone.Responses = copyResponses(s.Responses)
	if s.SkippedAt != nil {
		v := *s.SkippedAt
		clone.SkippedAt = &v
	}
	if s.LastUpdated != nil {
		v := *s.LastUpdated
		clone.LastUpdated = &v
	}
	return clone
}

func copyResponses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type ControllerOption func(*Controller)

// WithDebounce sets the quiet period before a change is saved.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) { c.debounce = d }
}

// WithNavigate sets the callback run when the user leaves the journal.
func WithNavigate(fn func()) ControllerOption {
	return func(c *Controller) { c.navigate = fn }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// Controller holds the working state of one journal session and keeps it
// in sync with a Backend. Edits apply locally at once; saves are debounced
// and their confirmed cursor is folded back into the local state.
type Controller struct {
	backend  Backend
	journal  string
	debounce time.Duration
	navigate func()
	now      func() time.Time

	mu      sync.Mutex
	loaded  *Journal
	state   State
	status  Status
	err     error
	timer   *time.Timer
	gen     uint64
	seq     uint64
	applied uint64

	inflight sync.WaitGroup
}

func NewController(backend Backend, journal string, opts ...ControllerOption) *Controller {
	c := &Controller{
		backend:  backend,
		journal:  journal,
		debounce: DefaultDebounce,
		navigate: func() {},
		now:      time.Now,
		status:   StatusLoading,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the journal and the saved progress.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusLoading
	c.mu.Unlock()

	view, err := c.backend.Load(ctx, c.journal)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.status = StatusError
		c.err = err
		return err
	}

	state := DefaultState(view.Journal.Prompts)
	for k, v := range view.Responses {
		state.Responses[k] = v
	}
	if view.UserState != nil {
		state.ActiveStep = view.UserState.ActiveStep
		state.Todo = view.UserState.Todo
		state.SkippedAt = view.UserState.SkippedAt
		state.LastUpdated = view.UserState.LastUpdated
	}

	journal := view.Journal
	c.loaded = &journal
	c.state = state
	c.status = StatusReady
	c.err = nil
	return nil
}

func (c *Controller) Journal() *Journal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// State returns a copy of the working state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err is the last load or save failure.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CurrentPrompt is the prompt under the cursor, or nil before Load.
func (c *Controller) CurrentPrompt() *Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil || len(c.loaded.Prompts) == 0 {
		return nil
	}
	step := c.state.ActiveStep
	if step < 0 || step >= len(c.loaded.Prompts) {
		return nil
	}
	p := c.loaded.Prompts[step]
	return &p
}

// UpdateResponse replaces the text for key. Filling the last required
// prompt clears the todo flag.
func (c *Controller) UpdateResponse(key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded == nil {
		return fmt.Errorf("journal not loaded")
	}
	if _, ok := c.state.Responses[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrompt, key)
	}

	c.state.Responses[key] = text
	c.state.LastUpdated = c.timestamp()
	if c.requiredCompleteLocked() {
		c.state.Todo = false
	}
	c.scheduleLocked()
	return nil
}

// GoToStep moves the cursor, clamped to the prompt range.
func (c *Controller) GoToStep(step int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded == nil || len(c.loaded.Prompts) == 0 {
		return
	}
	if step > len(c.loaded.Prompts)-1 {
		step = len(c.loaded.Prompts) - 1
	}
	if step < 0 {
		step = 0
	}
	if step == c.state.ActiveStep {
		return
	}

	c.state.ActiveStep = step
	c.scheduleLocked()
}

func (c *Controller) Next() {
	c.GoToStep(c.State().ActiveStep + 1)
}

func (c *Controller) Previous() {
	c.GoToStep(c.State().ActiveStep - 1)
}

// CanComplete reports whether every required prompt has a non-blank answer.
func (c *Controller) CanComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requiredCompleteLocked()
}

// Skip marks the journal as left for later, saves right away and navigates
// without waiting for the save.
func (c *Controller) Skip() {
	c.mu.Lock()
	c.state.Todo = true
	c.state.SkippedAt = c.timestamp()
	c.dispatchLocked()
	c.mu.Unlock()

	c.navigate()
}

// Complete finishes the journal. It does nothing and returns false while a
// required prompt is blank.
func (c *Controller) Complete() bool {
	c.mu.Lock()
	if !c.requiredCompleteLocked() {
		c.mu.Unlock()
		return false
	}
	c.state.Todo = false
	c.state.SkippedAt = nil
	c.state.LastUpdated = c.timestamp()
	c.dispatchLocked()
	c.mu.Unlock()

	c.navigate()
	return true
}

// Flush saves pending changes now instead of at the end of the debounce.
func (c *Controller) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.dispatchLocked()
	}
	c.mu.Unlock()
	c.Wait()
}

// Wait blocks until every dispatched save has finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close stops the debounce timer. Pending changes are dropped; call Flush
// first to keep them.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
}

func (c *Controller) requiredCompleteLocked() bool {
	if c.loaded == nil {
		return false
	}
	for _, p := range c.loaded.Prompts {
		if p.Optional {
			continue
		}
		if strings.TrimSpace(c.state.Responses[p.Key]) == "" {
			return false
		}
	}
	return true
}

func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

// stopTimerLocked disarms the debounce. Bumping gen also voids a callback
// that already fired but has not taken the lock yet.
func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.timer = nil
	c.dispatchLocked()
}

// dispatchLocked cancels any pending debounce and starts a save of the
// current state in the background.
func (c *Controller) dispatchLocked() {
	c.stopTimerLocked()

	c.seq++
	seq := c.seq
	snap := Snapshot{
		Responses:  copyResponses(c.state.Responses),
		ActiveStep: c.state.ActiveStep,
		Todo:       c.state.Todo,
		SkippedAt:  c.state.SkippedAt,
	}
	c.status = StatusSaving

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.save(seq, snap)
	}()
}

func (c *Controller) save(seq uint64, snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	resp, err := c.backend.Save(ctx, c.journal, snap)

	c.mu.Lock()
	defer c.mu.Unlock()

	// a response older than one already applied carries a stale cursor
	if seq <= c.applied {
		return
	}
	c.applied = seq

	if err != nil {
		c.status = StatusError
		c.err = err
		return
	}
	c.err = nil

	// local edits made after this dispatch are newer than the echo
	if c.timer == nil && seq == c.seq {
		c.state.ActiveStep = resp.State.ActiveStep
		c.state.Todo = resp.State.Todo
		c.state.SkippedAt = resp.State.SkippedAt
		c.state.LastUpdated = resp.State.LastUpdated
		c.status = StatusSaved
	}
}

func (c *Controller) timestamp() *string {
	ts := c.now().UTC().Format(time.RFC3339)
	return &ts
}
