package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// State is the load state of the classifier
type State int32

const (
	StateUnloaded State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Fallback is returned whenever no live prediction is available
var Fallback = models.ClassifierResult{ProbabilityAttack: 0.3, Confidence: 0.0}

// Model is a loaded classifier: text in, attack probability out
type Model interface {
	Predict(ctx context.Context, text string) (float64, error)
}

// Loader acquires a Model. It is called at most once per Adapter lifetime unless Reset is used.
type Loader func(ctx context.Context) (Model, error)

// Config holds adapter timeouts
type Config struct {
	CallTimeout time.Duration
	LoadTimeout time.Duration
}

// Adapter lazily loads a Model on first use and degrades to Fallback when it cannot
type Adapter struct {
	loader Loader
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	state     atomic.Int32
	model     atomic.Pointer[loadedModel]
	loadCalls atomic.Int32
}

type loadedModel struct {
	Model
}

// NewAdapter creates an Adapter in the unloaded state
func NewAdapter(loader Loader, config Config, logger *slog.Logger) *Adapter {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 2 * time.Second
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 30 * time.Second
	}
	return &Adapter{
		loader: loader,
		config: config,
		logger: logger,
	}
}

// State returns the current load state
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Usable reports whether a live classifier has been loaded
func (a *Adapter) Usable() bool {
	return a.State() == StateLoaded
}

// LoadAttempts returns how many times the loader has been invoked
func (a *Adapter) LoadAttempts() int {
	return int(a.loadCalls.Load())
}

// EnsureLoaded loads the model on first call and reports whether a live classifier is available.
// A failed load is terminal until Reset.
func (a *Adapter) EnsureLoaded(ctx context.Context) bool {
	switch a.State() {
	case StateLoaded:
		return true
	case StateFailed:
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Another caller may have finished loading while we waited
	if s := a.State(); s != StateUnloaded {
		return s == StateLoaded
	}

	// The load outlives the request that triggered it
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.LoadTimeout)
	defer cancel()

	a.loadCalls.Add(1)
	start := time.Now()

	var model Model
	err := models.ErrClassifierUnavailable
	if a.loader != nil {
		model, err = a.loader(loadCtx)
		if err == nil && model == nil {
			err = models.ErrClassifierUnavailable
		}
	}

	if err != nil {
		a.state.Store(int32(StateFailed))
		a.logger.Warn("classifier load failed, using behavioral-only scoring",
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)))
		return false
	}

	a.model.Store(&loadedModel{Model: model})
	a.state.Store(int32(StateLoaded))
	a.logger.Info("classifier loaded", slog.Duration("elapsed", time.Since(start)))
	return true
}

// Score runs the classifier on text. On any failure it returns Fallback together with the error;
// a nil error means the result came from the live model.
func (a *Adapter) Score(ctx context.Context, text string) (models.ClassifierResult, error) {
	if !a.EnsureLoaded(ctx) {
		return Fallback, models.ErrClassifierUnavailable
	}
	m := a.model.Load()
	if m == nil {
		return Fallback, models.ErrClassifierUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	p, err := m.Predict(callCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Fallback, fmt.Errorf("%w: %v", models.ErrClassifierTimeout, err)
		}
		return Fallback, fmt.Errorf("classifier predict: %w", err)
	}

	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Fallback, fmt.Errorf("classifier predict: invalid probability %v", p)
	}
	p = math.Max(0, math.Min(1, p))

	return models.ClassifierResult{
		ProbabilityAttack: p,
		Confidence:        math.Abs(p-0.5) * 2,
	}, nil
}

// Reset returns the adapter to the unloaded state so the next call retries the load
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.model.Store(nil)
	a.state.Store(int32(StateUnloaded))
	a.logger.Info("classifier state reset")
}
