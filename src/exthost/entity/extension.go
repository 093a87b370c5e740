package entity

const (
	// ActivationEventAll activates an extension unconditionally.
	ActivationEventAll = "*"
	// ActivationEventOnLanguagePrefix activates an extension when a document of the suffixed language is visible.
	ActivationEventOnLanguagePrefix = "onLanguage:"
)

// ExtensionManifest is the parsed manifest of an extension.
type ExtensionManifest struct {
	URL              string   `json:"url"`
	ActivationEvents []string `json:"activationEvents"`
}

// ExtensionDescriptor is an extension configured in the host application.
// At most one of Manifest and ManifestError is set; both are nil when the manifest was not found.
type ExtensionDescriptor struct {
	ID            string             `json:"id"`
	Manifest      *ExtensionManifest `json:"manifest"`
	ManifestError *ErrorLike         `json:"manifestError,omitempty"`
	RawManifest   *string            `json:"rawManifest"`
}

// ExecutableExtension is the information needed by the extension host to execute and activate an extension.
type ExecutableExtension struct {
	ID        string `json:"id"`
	ScriptURL string `json:"scriptURL"`
}
