package service

import (
	"net/url"
	"strings"

	"github.com/turtacn/apishield/pkg/constants"
)

// KeyKind selects the storage namespace.
type KeyKind int

const (
	KeyCounter KeyKind = iota
	KeyBan
)

// BuildKey produces the namespaced storage key for (kind, identity, scopeKey).
//
//	ban:     ban:{identity}
//	counter: ip:{identity}            (global scope)
//	         ip:{scopeKey}:{identity} (route scope)
//
// The identity is query-escaped so it never contains the separator; the identity
// is therefore always the text after the last ":" and distinct scopes can not
// collide. The scope is ignored for bans, which are per identity.
func BuildKey(kind KeyKind, identity, scopeKey string) string {
	id := url.QueryEscape(identity)
	if kind == KeyBan {
		return constants.BanKeyPrefix + id
	}
	if scopeKey == "" {
		return constants.CounterKeyPrefix + id
	}
	return constants.CounterKeyPrefix + scopeKey + constants.KeySeparator + id
}

// BanKey is BuildKey(KeyBan, identity, "").
func BanKey(identity string) string {
	return BuildKey(KeyBan, identity, "")
}

// CounterKey is BuildKey(KeyCounter, identity, scopeKey).
func CounterKey(identity, scopeKey string) string {
	return BuildKey(KeyCounter, identity, scopeKey)
}

// ParseCounterKey splits a counter key back into identity and scope. It cuts
// at the last ":" and so depends on BuildKey escaping the identity but not the
// scope: a route scope may itself contain ":" while an escaped identity never
// does. Escaping the scope as well would break the round trip for existing keys.
func ParseCounterKey(key string) (identity, scopeKey string, ok bool) {
	rest, found := strings.CutPrefix(key, constants.CounterKeyPrefix)
	if !found || rest == "" {
		return "", "", false
	}
	if i := strings.LastIndex(rest, constants.KeySeparator); i >= 0 {
		scopeKey, rest = rest[:i], rest[i+1:]
	}
	identity, err := url.QueryUnescape(rest)
	if err != nil {
		return "", "", false
	}
	return identity, scopeKey, true
}

// ParseBanKey extracts the identity from a ban key.
func ParseBanKey(key string) (string, bool) {
	rest, found := strings.CutPrefix(key, constants.BanKeyPrefix)
	if !found || rest == "" {
		return "", false
	}
	identity, err := url.QueryUnescape(rest)
	if err != nil {
		return "", false
	}
	return identity, true
}
