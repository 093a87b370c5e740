// Package environment stores the environment snapshot shared by the host application and every extension
// host connection.
package environment

import (
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Repository is the single writer of the environment. Snapshots are replaced, never modified in place.
type Repository interface {
	// Data replays the current environment to each subscriber and then pushes every change.
	Data() observable.Observable[entity.Environment]
	// Get returns the current environment.
	Get() entity.Environment
	// Set replaces the environment.
	Set(env entity.Environment)
	// Update replaces the environment with the result of fn applied to the current one.
	Update(fn func(current entity.Environment) entity.Environment) entity.Environment
}

type repository struct {
	data  *observable.Subject[entity.Environment]
	stats tally.Scope
}

// New returns a repository holding an empty environment.
func New(stats tally.Scope) Repository {
	return &repository{
		data:  observable.NewSubject(entity.Environment{}),
		stats: stats.SubScope("environment"),
	}
}

func (r *repository) Data() observable.Observable[entity.Environment] {
	return r.data
}

func (r *repository) Get() entity.Environment {
	return r.data.Value()
}

func (r *repository) Set(env entity.Environment) {
	r.data.Next(env)
	r.updateMetrics(env)
}

func (r *repository) Update(fn func(current entity.Environment) entity.Environment) entity.Environment {
	next := r.data.Update(fn)
	r.updateMetrics(next)
	return next
}

func (r *repository) updateMetrics(env entity.Environment) {
	r.stats.Gauge("roots").Update(float64(len(env.Roots)))
	r.stats.Gauge("visible_documents").Update(float64(len(env.VisibleTextDocuments)))
	r.stats.Gauge("extensions").Update(float64(len(env.Extensions)))
}
