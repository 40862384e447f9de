package tools

import "fmt"

// Envelope is the wire-visible contract for every tool call: exactly one
// of (Success=true, Result set) or (Success=false, Error set) holds.
type Envelope struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error,omitempty"`
}

func successEnvelope(tool string, result any) Envelope {
	return Envelope{Tool: tool, Success: true, Result: result}
}

func failureEnvelope(tool string, err error) Envelope {
	return Envelope{Tool: tool, Success: false, Result: nil, Error: errorDetail(err)}
}

// errorDetail renders an error as "<Kind>: <message>", preserving an
// upstream provider's own error text verbatim when the error is (or
// wraps) an *errkind.Error, per the firm contract that assistant clients
// can rely on the actual error text.
func errorDetail(err error) string {
	kind, message := splitKind(err)
	if message == "" {
		return string(kind)
	}
	return fmt.Sprintf("%s: %s", kind, message)
}
