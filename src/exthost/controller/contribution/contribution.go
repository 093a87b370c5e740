// Package contribution keeps the actions extensions contribute to the host application and decides which of
// them are visible in a given state.
package contribution

import (
	"sync"

	"github.com/expr-lang/expr/vm"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Registry holds the registered contributions.
type Registry interface {
	// Register adds c to the registry. Every `when` expression must compile. The returned function removes
	// the registration and may be called more than once.
	Register(c entity.Contributions) (unregister func(), err error)
	// Entries replays the registered contributions to each subscriber and then pushes every change.
	Entries() observable.Observable[[]entity.Contributions]
	// Visible returns the registered actions whose `when` expression holds for model, in registration order.
	Visible(model entity.Model) []entity.ActionContribution
}

// Params are inbound parameters to initialize a new contribution registry.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type registration struct {
	id            int
	contributions entity.Contributions
	// programs holds the compiled `when` expression of each action, nil when it has none.
	programs []*vm.Program
}

type registry struct {
	logger  *zap.SugaredLogger
	stats   tally.Scope
	entries *observable.Subject[[]entity.Contributions]

	mu            sync.Mutex
	nextID        int
	registrations []registration
}

// New creates an empty contribution registry.
func New(p Params) Registry {
	return &registry{
		logger:  p.Logger,
		stats:   p.Stats.SubScope("contribution"),
		entries: observable.NewSubject([]entity.Contributions{}),
	}
}

func (r *registry) Register(c entity.Contributions) (func(), error) {
	programs := make([]*vm.Program, len(c.Actions))
	for i, action := range c.Actions {
		if action.When == "" {
			continue
		}
		program, err := compileWhen(action.When)
		if err != nil {
			return nil, err
		}
		programs[i] = program
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.registrations = append(r.registrations, registration{id: id, contributions: c, programs: programs})
	r.publishLocked()
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.unregister(id) })
	}, nil
}

func (r *registry) unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.registrations {
		if reg.id == id {
			r.registrations = append(r.registrations[:i:i], r.registrations[i+1:]...)
			r.publishLocked()
			return
		}
	}
}

// publishLocked must be called with mu held.
func (r *registry) publishLocked() {
	entries := make([]entity.Contributions, 0, len(r.registrations))
	for _, reg := range r.registrations {
		entries = append(entries, reg.contributions)
	}
	r.stats.Gauge("registrations").Update(float64(len(entries)))
	r.entries.Next(entries)
}

func (r *registry) Entries() observable.Observable[[]entity.Contributions] {
	return r.entries
}

func (r *registry) Visible(model entity.Model) []entity.ActionContribution {
	r.mu.Lock()
	registrations := append([]registration(nil), r.registrations...)
	r.mu.Unlock()

	visible := []entity.ActionContribution{}
	for _, reg := range registrations {
		for i, action := range reg.contributions.Actions {
			program := reg.programs[i]
			if program == nil {
				visible = append(visible, action)
				continue
			}
			ok, err := evaluateWhen(program, model)
			if err != nil {
				r.logger.Warnw("evaluating when clause", zap.String("action", action.ID), zap.String("when", action.When), zap.Error(err))
				continue
			}
			if ok {
				visible = append(visible, action)
			}
		}
	}
	return visible
}
