package entity

// ActionContribution is a command an extension contributes to the host application's menus.
type ActionContribution struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Command string `json:"command"`
	// When is an expression over context keys that decides whether the action is shown. Empty means always.
	When string `json:"when,omitempty"`
}

// Contributions are the features an extension registers with the host application.
type Contributions struct {
	Actions []ActionContribution `json:"actions,omitempty"`
}
