package cfauth

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// InterpretAuth builds a Token from the "auth" object of a login response.
//
// lease_duration wins over ttl. renewable=true requires a lease; a missing
// one is reported instead of defaulting to zero.
func InterpretAuth(auth map[string]any) (Token, error) {
	if auth == nil {
		return Token{}, malformed("auth block is missing")
	}

	secret, err := clientToken(auth)
	if err != nil {
		return Token{}, err
	}

	renewable, err := optionalBool(auth, "renewable")
	if err != nil {
		return Token{}, err
	}

	lease, hasLease, err := optionalSeconds(auth, "lease_duration")
	if err != nil {
		return Token{}, err
	}
	if !hasLease {
		lease, hasLease, err = optionalSeconds(auth, "ttl")
		if err != nil {
			return Token{}, err
		}
	}

	switch {
	case renewable && !hasLease:
		return Token{}, malformed("renewable token without lease_duration or ttl")
	case renewable:
		return RenewableToken(secret, lease), nil
	case hasLease:
		return LeasedToken(secret, lease), nil
	default:
		return FixedToken(secret), nil
	}
}

func clientToken(auth map[string]any) (string, error) {
	raw, ok := auth["client_token"]
	if !ok || raw == nil {
		return "", malformed("client_token is missing")
	}
	s, ok := raw.(string)
	if !ok {
		return "", malformed("client_token is %T, want string", raw)
	}
	if s == "" {
		return "", malformed("client_token is empty")
	}
	return s, nil
}

func optionalBool(auth map[string]any, field string) (bool, error) {
	raw, ok := auth[field]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, malformed("%s is %T, want bool", field, raw)
	}
	return b, nil
}

// optionalSeconds reads a non-negative integral number of seconds. JSON
// decoders hand numbers over as float64 or json.Number.
func optionalSeconds(auth map[string]any, field string) (time.Duration, bool, error) {
	raw, ok := auth[field]
	if !ok || raw == nil {
		return 0, false, nil
	}

	var secs int64
	switch v := raw.(type) {
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, false, malformed("%s %q is not a whole number of seconds", field, v.String())
		}
		secs = n
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt64/float64(time.Second) {
			return 0, false, malformed("%s %v is not a whole number of seconds", field, v)
		}
		secs = int64(v)
	case int:
		secs = int64(v)
	case int64:
		secs = v
	default:
		return 0, false, malformed("%s is %T, want number", field, raw)
	}

	if secs < 0 {
		return 0, false, malformed("%s %d is negative", field, secs)
	}
	if secs > math.MaxInt64/int64(time.Second) {
		return 0, false, malformed("%s %d is out of range", field, secs)
	}
	return time.Duration(secs) * time.Second, true, nil
}
