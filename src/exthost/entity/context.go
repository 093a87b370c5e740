package entity

// Context is a flat map of application state consulted by computed context properties and `when` clauses.
// In an update, a nil value is a tombstone that removes the key.
type Context map[string]interface{}

// Clone returns a shallow copy of c.
func (c Context) Clone() Context {
	clone := make(Context, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}
