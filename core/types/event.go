package types

// Event is the flattened form of a lending state change: a dotted type such
// as "lending.deposit" plus string attributes keyed by field name. The stream
// hub forwards it to websocket subscribers unchanged.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute, or "" when the event does not carry it.
func (e *Event) Attr(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}
