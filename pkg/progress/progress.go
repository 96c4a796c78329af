package progress

import (
	"context"
	"sync"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Event is emitted between iterations, never in the middle of a mutation.
type Event struct {
	Stage       string  `json:"stage"`
	Optimizer   string  `json:"optimizer,omitempty"`
	Iteration   int     `json:"iteration"`
	Total       int     `json:"total"`
	BestFitness float64 `json:"bestFitness"`
}

// Observer receives progress events.
type Observer interface {
	OnProgress(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event)

func (fn ObserverFunc) OnProgress(event Event) {
	fn(event)
}

// Control lets a caller pause, resume or cancel a run. Runs check it at
// suspension points between iterations.
type Control struct {
	mutex     sync.Mutex
	paused    bool
	cancelled bool
	resumed   chan struct{}
}

func NewControl() *Control {
	return &Control{resumed: make(chan struct{})}
}

func (control *Control) Pause() {
	control.mutex.Lock()
	defer control.mutex.Unlock()
	if !control.paused {
		control.paused = true
		control.resumed = make(chan struct{})
	}
}

func (control *Control) Resume() {
	control.mutex.Lock()
	defer control.mutex.Unlock()
	if control.paused {
		control.paused = false
		close(control.resumed)
	}
}

func (control *Control) Cancel() {
	control.mutex.Lock()
	defer control.mutex.Unlock()
	control.cancelled = true
	if control.paused {
		control.paused = false
		close(control.resumed)
	}
}

func (control *Control) IsPaused() bool {
	control.mutex.Lock()
	defer control.mutex.Unlock()
	return control.paused
}

func (control *Control) IsCancelled() bool {
	control.mutex.Lock()
	defer control.mutex.Unlock()
	return control.cancelled
}

// Wait blocks while the run is paused and fails once it is cancelled or the
// context is done.
func (control *Control) Wait(ctx context.Context) error {
	for {
		control.mutex.Lock()
		cancelled, paused, resumed := control.cancelled, control.paused, control.resumed
		control.mutex.Unlock()

		if cancelled {
			return appErrors.ErrCancelled
		}
		if !paused {
			return ctx.Err()
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reporter bundles the observer and control of one run. A nil Reporter is
// valid and does nothing.
type Reporter struct {
	stage    string
	observer Observer
	control  *Control
}

func NewReporter(observer Observer, control *Control) *Reporter {
	return &Reporter{observer: observer, control: control}
}

// WithStage returns a reporter tagging its events with the stage name.
func (reporter *Reporter) WithStage(stage string) *Reporter {
	if reporter == nil {
		return nil
	}
	clone := *reporter
	clone.stage = stage
	return &clone
}

func (reporter *Reporter) Report(event Event) {
	if reporter == nil || reporter.observer == nil {
		return
	}
	if event.Stage == "" {
		event.Stage = reporter.stage
	}
	reporter.observer.OnProgress(event)
}

// Checkpoint is the suspension point between iterations: it waits out a pause
// and reports cancellation.
func (reporter *Reporter) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reporter == nil || reporter.control == nil {
		return nil
	}
	return reporter.control.Wait(ctx)
}

// Synchronized returns a reporter whose observer may be called from several
// goroutines at once.
func (reporter *Reporter) Synchronized() *Reporter {
	if reporter == nil || reporter.observer == nil {
		return reporter
	}
	if _, ok := reporter.observer.(*lockedObserver); ok {
		return reporter
	}
	clone := *reporter
	clone.observer = &lockedObserver{observer: reporter.observer}
	return &clone
}

type lockedObserver struct {
	mutex    sync.Mutex
	observer Observer
}

func (locked *lockedObserver) OnProgress(event Event) {
	locked.mutex.Lock()
	defer locked.mutex.Unlock()
	locked.observer.OnProgress(event)
}
