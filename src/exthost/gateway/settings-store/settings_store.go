// Package settingsstore persists settings subjects as YAML or JSON files and merges them into a settings cascade.
package settingsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/imdario/mergo"
	"github.com/uber/exthost-broker/src/exthost/entity"
	exthosterrors "github.com/uber/exthost-broker/src/exthost/internal/errors"
	"github.com/uber/exthost-broker/src/exthost/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const _configKeySettings = "settings"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Store is the settings store consulted by the settings cascade service.
type Store interface {
	// QuerySettings reads every subject, in ascending precedence, and merges them.
	QuerySettings(ctx context.Context) (entity.SettingsCascade, error)
	// UpdateSettings applies edit to the settings of the subject with the given id and persists them.
	UpdateSettings(ctx context.Context, subjectID string, edit entity.SettingsUpdate) error
	// Watch calls onChange whenever a subject file changes on disk, until stop is called or ctx is done.
	Watch(ctx context.Context, onChange func()) (stop func() error, err error)
	// WatchEnabled reports whether the configuration asks for subject files to be watched.
	WatchEnabled() bool
}

// SubjectConfig is a settings subject backed by a file.
type SubjectConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
}

type storeConfig struct {
	Subjects []SubjectConfig `yaml:"subjects"`
	Watch    bool            `yaml:"watch"`
}

// Params are inbound parameters to initialize a new settings store.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	FS     fs.FS
}

type store struct {
	subjects []SubjectConfig
	watch    bool
	fs       fs.FS
	logger   *zap.SugaredLogger

	// mu guards file writes so concurrent updates of one subject do not lose edits.
	mu sync.Mutex
}

// New creates a settings store for the subjects listed in the configuration.
func New(p Params) (Store, error) {
	s := &store{
		fs:     p.FS,
		logger: p.Logger,
	}
	if err := s.processConfig(p.Config); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) QuerySettings(ctx context.Context) (entity.SettingsCascade, error) {
	if err := ctx.Err(); err != nil {
		return entity.SettingsCascade{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cascade := entity.SettingsCascade{
		Subjects: make([]entity.SettingsSubject, 0, len(s.subjects)),
	}
	var mergeErr error
	final := entity.Settings{}
	for _, subject := range s.subjects {
		settings, err := s.readSubject(subject)
		cascade.Subjects = append(cascade.Subjects, entity.SettingsSubject{
			Subject:       entity.Subject{ID: subject.ID, Label: subject.Label},
			Settings:      settings,
			SettingsError: entity.NewErrorLike(err),
		})
		if err != nil {
			mergeErr = multierr.Append(mergeErr, fmt.Errorf("subject %q: %w", subject.ID, err))
			continue
		}
		if err := mergo.Merge(&final, deepCopy(settings).(entity.Settings), mergo.WithOverride); err != nil {
			mergeErr = multierr.Append(mergeErr, fmt.Errorf("merging subject %q: %w", subject.ID, err))
		}
	}

	if mergeErr != nil {
		cascade.FinalError = entity.NewErrorLike(mergeErr)
		return cascade, nil
	}
	cascade.Final = final
	return cascade, nil
}

func (s *store) UpdateSettings(ctx context.Context, subjectID string, edit entity.SettingsUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, ok := s.subject(subjectID)
	if !ok {
		return &exthosterrors.SubjectNotFoundError{SubjectID: subjectID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.readSubject(subject)
	if err != nil {
		return fmt.Errorf("reading subject %q: %w", subjectID, err)
	}

	updated, err := applyEdit(settings, edit)
	if err != nil {
		return fmt.Errorf("editing subject %q: %w", subjectID, err)
	}

	data, err := encode(subject.Path, updated)
	if err != nil {
		return fmt.Errorf("encoding subject %q: %w", subjectID, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(subject.Path)); err != nil {
		return fmt.Errorf("creating directory for subject %q: %w", subjectID, err)
	}
	if err := s.fs.WriteFile(subject.Path, data); err != nil {
		return fmt.Errorf("writing subject %q: %w", subjectID, err)
	}

	s.logger.Infow("settings updated", zap.String("subject", subjectID), zap.Any("path", edit.Path))
	return nil
}

func (s *store) WatchEnabled() bool {
	return s.watch
}

func (s *store) Watch(ctx context.Context, onChange func()) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	files := make(map[string]struct{}, len(s.subjects))
	dirs := make(map[string]struct{}, len(s.subjects))
	for _, subject := range s.subjects {
		files[filepath.Clean(subject.Path)] = struct{}{}
		dir := filepath.Dir(subject.Path)
		if _, ok := dirs[dir]; ok {
			continue
		}
		dirs[dir] = struct{}{}
		if err := watcher.Add(dir); err != nil {
			// The subject can still be created later through an update, it just will not be watched.
			s.logger.Warnw("unable to watch settings directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, ok := files[filepath.Clean(event.Name)]; !ok {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.logger.Debugw("settings subject changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warnw("settings watcher error", zap.Error(err))
			}
		}
	}()

	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = watcher.Close()
			wg.Wait()
		})
		return err
	}
	return stop, nil
}

func (s *store) subject(id string) (SubjectConfig, bool) {
	for _, subject := range s.subjects {
		if subject.ID == id {
			return subject, true
		}
	}
	return SubjectConfig{}, false
}

// readSubject returns the settings stored for subject. A missing file holds no settings.
func (s *store) readSubject(subject SubjectConfig) (entity.Settings, error) {
	exists, err := s.fs.FileExists(subject.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return entity.Settings{}, nil
	}

	data, err := s.fs.ReadFile(subject.Path)
	if err != nil {
		return nil, err
	}
	return decode(subject.Path, data)
}

func (s *store) processConfig(cfg config.Provider) error {
	var sc storeConfig
	if err := cfg.Get(_configKeySettings).Populate(&sc); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeySettings, err)
	}

	if len(sc.Subjects) == 0 {
		return fmt.Errorf("missing field %q in config", _configKeySettings+".subjects")
	}

	seen := make(map[string]struct{}, len(sc.Subjects))
	for i, subject := range sc.Subjects {
		if subject.ID == "" || subject.Path == "" {
			return fmt.Errorf("settings subject %d requires an id and a path", i)
		}
		if _, ok := seen[subject.ID]; ok {
			return fmt.Errorf("duplicate settings subject %q", subject.ID)
		}
		seen[subject.ID] = struct{}{}

		abs, err := s.fs.Abs(subject.Path)
		if err != nil {
			return fmt.Errorf("resolving settings subject %q: %w", subject.ID, err)
		}
		sc.Subjects[i].Path = abs
	}

	s.subjects = sc.Subjects
	s.watch = sc.Watch
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// decode parses a subject file. YAML documents are normalized to the types produced by encoding/json, so
// that every subject compares and merges the same way regardless of its format.
func decode(path string, data []byte) (entity.Settings, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return entity.Settings{}, nil
	}

	var raw interface{}
	if isJSON(path) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	} else {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		normalized, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(normalized, &raw); err != nil {
			return nil, err
		}
	}

	switch v := raw.(type) {
	case nil:
		return entity.Settings{}, nil
	case map[string]interface{}:
		return entity.Settings(v), nil
	default:
		return nil, fmt.Errorf("settings must be an object, got %T", raw)
	}
}

func encode(path string, settings entity.Settings) ([]byte, error) {
	if isJSON(path) {
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(map[string]interface{}(settings))
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case entity.Settings:
		out := make(entity.Settings, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
