package cfauth

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// TokenKind describes the lease shape of a Token.
type TokenKind int

const (
	// TokenFixed has no expiry known to the client.
	TokenFixed TokenKind = iota
	// TokenLeased expires after its lease and cannot be renewed.
	TokenLeased
	// TokenRenewable expires after its lease unless renewed.
	TokenRenewable
)

func (k TokenKind) String() string {
	switch k {
	case TokenFixed:
		return "fixed"
	case TokenLeased:
		return "leased"
	case TokenRenewable:
		return "renewable"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Token is the result of a successful login. It is immutable; a new login or
// renewal produces a new Token.
type Token struct {
	secret string
	kind   TokenKind
	lease  time.Duration
}

// FixedToken returns a token without lease information.
func FixedToken(secret string) Token {
	return Token{secret: secret, kind: TokenFixed}
}

// LeasedToken returns a non-renewable token valid for lease.
func LeasedToken(secret string, lease time.Duration) Token {
	return Token{secret: secret, kind: TokenLeased, lease: lease}
}

// RenewableToken returns a token valid for lease that may be renewed.
func RenewableToken(secret string, lease time.Duration) Token {
	return Token{secret: secret, kind: TokenRenewable, lease: lease}
}

// Secret returns the opaque client token. Never log it.
func (t Token) Secret() string { return t.secret }

// Kind reports the lease shape.
func (t Token) Kind() TokenKind { return t.kind }

// IsRenewable reports whether the token can be extended via a renewal call.
func (t Token) IsRenewable() bool { return t.kind == TokenRenewable }

// LeaseDuration returns the declared lease; ok is false for fixed tokens.
func (t Token) LeaseDuration() (d time.Duration, ok bool) {
	if t.kind == TokenFixed {
		return 0, false
	}
	return t.lease, true
}

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool { return t.secret == "" }

// String renders the token without its secret.
func (t Token) String() string {
	if t.kind == TokenFixed {
		return "Token[fixed, secret=****]"
	}
	return fmt.Sprintf("Token[%s, lease=%s, secret=****]", t.kind, t.lease)
}

// GoString keeps %#v from printing the secret.
func (t Token) GoString() string { return t.String() }

// MarshalLogObject implements zapcore.ObjectMarshaler without the secret.
func (t Token) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", t.kind.String())
	enc.AddBool("renewable", t.IsRenewable())
	if lease, ok := t.LeaseDuration(); ok {
		enc.AddDuration("lease", lease)
	}
	return nil
}
