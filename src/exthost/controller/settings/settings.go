// Package settings provides the settings cascade service: the reactive view of the layered settings and the
// only way to change them.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	settingsstore "github.com/uber/exthost-broker/src/exthost/gateway/settings-store"
	exthosterrors "github.com/uber/exthost-broker/src/exthost/internal/errors"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Service owns the settings cascade.
type Service interface {
	// Data replays the current cascade to each subscriber and then pushes every refreshed cascade.
	// Before the first refresh the cascade is the invalid empty cascade.
	Data() observable.Observable[entity.SettingsCascade]
	// Value returns the current cascade.
	Value() entity.SettingsCascade
	// Update persists edit in the highest precedence subject, then refreshes. It returns once the refreshed
	// cascade has been published.
	Update(ctx context.Context, edit entity.SettingsUpdate) error
	// Refresh queries the settings store and publishes the result.
	Refresh(ctx context.Context) error
}

// Params are inbound parameters to initialize a new settings service.
type Params struct {
	fx.In

	Store     settingsstore.Store
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Lifecycle fx.Lifecycle `optional:"true"`
}

type service struct {
	store  settingsstore.Store
	logger *zap.SugaredLogger
	stats  tally.Scope
	data   *observable.Subject[entity.SettingsCascade]

	// mu serializes updates and refreshes against the store.
	mu sync.Mutex

	stopWatch func() error
}

// New creates the settings service. When a lifecycle is provided, the cascade is loaded on start and, if
// enabled, reloaded whenever the store reports a change.
func New(p Params) Service {
	s := &service{
		store:  p.Store,
		logger: p.Logger.With("service", "settings"),
		stats:  p.Stats.SubScope("settings"),
		data:   observable.NewSubject(entity.SettingsCascade{}),
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: s.onStart,
			OnStop:  s.onStop,
		})
	}
	return s
}

func (s *service) Data() observable.Observable[entity.SettingsCascade] {
	return s.data
}

func (s *service) Value() entity.SettingsCascade {
	return s.data.Value()
}

func (s *service) Update(ctx context.Context, edit entity.SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Counter("updates").Inc(1)

	current := s.data.Value()
	if !current.IsValid() {
		s.stats.Counter("invalid_cascade").Inc(1)
		return &exthosterrors.InvalidCascadeError{}
	}
	target, ok := current.HighestPrecedenceSubject()
	if !ok {
		s.stats.Counter("invalid_cascade").Inc(1)
		return &exthosterrors.InvalidCascadeError{}
	}

	if err := s.store.UpdateSettings(ctx, target.Subject.ID, edit); err != nil {
		s.stats.Counter("update_errors").Inc(1)
		return fmt.Errorf("updating settings of subject %q: %w", target.Subject.ID, err)
	}

	return s.refreshLocked(ctx)
}

func (s *service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshLocked(ctx)
}

func (s *service) refreshLocked(ctx context.Context) error {
	s.stats.Counter("refreshes").Inc(1)

	cascade, err := s.store.QuerySettings(ctx)
	if err != nil {
		s.stats.Counter("refresh_errors").Inc(1)
		return fmt.Errorf("querying settings: %w", err)
	}

	previous := s.data.Value()
	if cascade.FinalError != nil {
		s.logger.Warnw("settings cascade is invalid", zap.String("error", cascade.FinalError.Message))
	} else if !reflect.DeepEqual(previous.Final, cascade.Final) {
		s.logger.Debugw("settings changed", zap.String("diff", settingsDiff(previous.Final, cascade.Final)))
	}

	s.data.Next(cascade)
	return nil
}

func (s *service) onStart(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		// Consumers treat the empty cascade as not loaded yet; a later refresh may still succeed.
		s.logger.Errorw("initial settings refresh failed", zap.Error(err))
	}

	if !s.store.WatchEnabled() {
		return nil
	}
	stop, err := s.store.Watch(context.Background(), func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.logger.Errorw("settings refresh after change failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("watching settings: %w", err)
	}
	s.stopWatch = stop
	return nil
}

func (s *service) onStop(ctx context.Context) error {
	if s.stopWatch == nil {
		return nil
	}
	return s.stopWatch()
}

// settingsDiff renders a line diff between two merged settings objects.
func settingsDiff(before, after entity.Settings) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(indent(before), indent(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimSuffix(line, "\n"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func indent(v entity.Settings) string {
	if v == nil {
		return ""
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data) + "\n"
}
