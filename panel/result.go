package panel

import (
	"bytes"
	"encoding/json"

	x402 "github.com/x402-foundation/paypanel"
)

// Result is the outcome of one attempt: a response body or an error
type Result struct {
	AttemptID  string
	Body       json.RawMessage
	Err        error
	StatusCode int
	Payment    *x402.SettleResponse
}

// Text renders the result for display: the body as JSON indented by two
// spaces, or "Error: <message>".
func (r Result) Text() string {
	if r.Err != nil {
		return "Error: " + x402.DisplayMessage(r.Err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, r.Body, "", "  "); err != nil {
		return string(r.Body)
	}
	return out.String()
}

// OK reports whether the attempt produced a response body
func (r Result) OK() bool {
	return r.Err == nil
}
