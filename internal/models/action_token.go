package models

import (
	"fmt"
	"strings"
)

const actionTokenPrefix = "consent:"

// ActionToken identifies which decision a button represents and for which request
type ActionToken struct {
	Decision  Decision
	RequestID string
}

// Encode renders the token as a tagged string: consent:<decision>:<requestId>.
// The request id is always the final field so it may contain separators.
func (t ActionToken) Encode() string {
	return actionTokenPrefix + string(t.Decision) + ":" + t.RequestID
}

// ParseActionToken decodes a button token. It accepts the tagged form and the
// legacy "<decision>_<requestId>" form, splitting on the first separator only.
func ParseActionToken(raw string) (ActionToken, error) {
	var decision, requestID string
	if rest, ok := strings.CutPrefix(raw, actionTokenPrefix); ok {
		d, id, found := strings.Cut(rest, ":")
		if !found {
			return ActionToken{}, fmt.Errorf("malformed action token %q", raw)
		}
		decision, requestID = d, id
	} else {
		d, id, found := strings.Cut(raw, "_")
		if !found {
			return ActionToken{}, fmt.Errorf("malformed action token %q", raw)
		}
		decision, requestID = d, id
	}

	token := ActionToken{Decision: Decision(decision), RequestID: requestID}
	if !token.Decision.IsValid() {
		return ActionToken{}, fmt.Errorf("unknown decision %q in action token", decision)
	}
	if token.RequestID == "" {
		return ActionToken{}, fmt.Errorf("action token %q has no request id", raw)
	}
	return token, nil
}
