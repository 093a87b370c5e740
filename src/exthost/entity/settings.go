package entity

// Settings is a JSON object of settings, either for a single subject or merged.
type Settings map[string]interface{}

// Subject identifies a settings layer (default, organization, user, ...).
type Subject struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// SettingsSubject is a single layer of a settings cascade.
type SettingsSubject struct {
	Subject       Subject    `json:"subject"`
	Settings      Settings   `json:"settings"`
	SettingsError *ErrorLike `json:"settingsError,omitempty"`
}

// SettingsCascade is an ordered list of settings subjects (ascending precedence, the last one wins) and their
// merged result. A non-nil FinalError means the subjects could not be merged.
type SettingsCascade struct {
	Subjects   []SettingsSubject `json:"subjects"`
	Final      Settings          `json:"final"`
	FinalError *ErrorLike        `json:"finalError,omitempty"`
}

// IsValid reports whether the cascade has been loaded and merged successfully.
func (c SettingsCascade) IsValid() bool {
	return c.Subjects != nil && c.Final != nil && c.FinalError == nil
}

// HighestPrecedenceSubject returns the subject that updates are applied to.
// It must only be called on a valid cascade with at least one subject.
func (c SettingsCascade) HighestPrecedenceSubject() (SettingsSubject, bool) {
	if len(c.Subjects) == 0 {
		return SettingsSubject{}, false
	}
	return c.Subjects[len(c.Subjects)-1], true
}

// IsExtensionEnabled reports whether the merged settings enable the extension with the given id.
func (c SettingsCascade) IsExtensionEnabled(id string) bool {
	if c.Final == nil || c.FinalError != nil {
		return false
	}
	extensions, ok := c.Final["extensions"].(map[string]interface{})
	if !ok {
		return false
	}
	return IsTruthy(extensions[id])
}

// KeyPath refers to a location in a JSON document. Each element is either an object key (string) or an array
// index (int).
type KeyPath []interface{}

// SettingsUpdate sets Value at Path in the settings of a subject. A nil Value removes the key.
type SettingsUpdate struct {
	Path  KeyPath     `json:"path"`
	Value interface{} `json:"value"`
}

// IsTruthy follows JSON truthiness: false, null, 0 and "" are falsy.
func IsTruthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
