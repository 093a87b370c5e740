package settingsstore

import (
	"fmt"
	"math"

	"github.com/uber/exthost-broker/src/exthost/entity"
)

// applyEdit returns a copy of settings with edit.Value stored at edit.Path. Intermediate objects and arrays
// are created as needed, and a nil value removes the addressed key or array element.
func applyEdit(settings entity.Settings, edit entity.SettingsUpdate) (entity.Settings, error) {
	if len(edit.Path) == 0 {
		switch v := edit.Value.(type) {
		case nil:
			return entity.Settings{}, nil
		case map[string]interface{}:
			return deepCopy(entity.Settings(v)).(entity.Settings), nil
		case entity.Settings:
			return deepCopy(v).(entity.Settings), nil
		default:
			return nil, fmt.Errorf("settings must be an object, got %T", edit.Value)
		}
	}

	root := map[string]interface{}(deepCopy(settings).(entity.Settings))
	updated, err := setAt(root, edit.Path, edit.Value)
	if err != nil {
		return nil, err
	}
	return entity.Settings(updated.(map[string]interface{})), nil
}

func setAt(node interface{}, path entity.KeyPath, value interface{}) (interface{}, error) {
	segment := path[0]
	last := len(path) == 1

	switch key := segment.(type) {
	case string:
		obj, ok := node.(map[string]interface{})
		if !ok {
			if node != nil {
				return nil, fmt.Errorf("cannot set key %q on %T", key, node)
			}
			obj = map[string]interface{}{}
		}
		if last {
			if value == nil {
				delete(obj, key)
			} else {
				obj[key] = value
			}
			return obj, nil
		}
		child, err := setAt(obj[key], path[1:], value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		obj[key] = child
		return obj, nil
	default:
		index, err := toIndex(segment)
		if err != nil {
			return nil, err
		}
		arr, ok := node.([]interface{})
		if !ok {
			if node != nil {
				return nil, fmt.Errorf("cannot set index %d on %T", index, node)
			}
			arr = []interface{}{}
		}
		if index > len(arr) {
			return nil, fmt.Errorf("index %d out of range for array of length %d", index, len(arr))
		}
		if last {
			switch {
			case value == nil && index < len(arr):
				return append(arr[:index], arr[index+1:]...), nil
			case value == nil:
				return arr, nil
			case index == len(arr):
				return append(arr, value), nil
			default:
				arr[index] = value
				return arr, nil
			}
		}
		var current interface{}
		if index < len(arr) {
			current = arr[index]
		}
		child, err := setAt(current, path[1:], value)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", index, err)
		}
		if index == len(arr) {
			return append(arr, child), nil
		}
		arr[index] = child
		return arr, nil
	}
}

// toIndex accepts the integer forms a key path segment takes in Go callers and after JSON decoding.
func toIndex(segment interface{}) (int, error) {
	switch v := segment.(type) {
	case int:
		if v >= 0 {
			return v, nil
		}
	case int64:
		if v >= 0 {
			return int(v), nil
		}
	case float64:
		if v >= 0 && v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("invalid key path segment %v (%T)", segment, segment)
}
