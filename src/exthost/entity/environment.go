// Package entity contains the data model shared between the host application and the extension host bridge.
package entity

import (
	"go.lsp.dev/protocol"
)

// TextDocument is a document visible in the host application.
type TextDocument = protocol.TextDocumentItem

// WorkspaceRoot is a root open in the host application, typically a single repository.
type WorkspaceRoot = protocol.WorkspaceFolder

// Environment describes the state of the host application that extensions may react to.
// Snapshots are replaced as a whole and never mutated in place.
type Environment struct {
	// Roots are the currently open workspace roots, or nil if unknown.
	Roots []WorkspaceRoot `json:"roots"`
	// VisibleTextDocuments are the documents currently shown to the user, or nil if none.
	VisibleTextDocuments []TextDocument `json:"visibleTextDocuments"`
	// Extensions are the configured extensions, or nil if they have not been loaded.
	Extensions []ExtensionDescriptor `json:"extensions"`
}

// Model is the full application state pushed to the extension host: the environment plus the settings
// cascade and the context.
type Model struct {
	Environment
	Configuration SettingsCascade `json:"configuration"`
	Context       Context         `json:"context"`
}

// VisibleLanguages returns the language ids of the visible documents, in order.
func (e Environment) VisibleLanguages() []string {
	languages := make([]string, 0, len(e.VisibleTextDocuments))
	for _, doc := range e.VisibleTextDocuments {
		languages = append(languages, string(doc.LanguageID))
	}
	return languages
}
