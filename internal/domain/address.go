package domain

import (
	"database/sql"
	"fmt"
	"strings"
)

// QuerySeparator joins the parts of a geocoding query.
const QuerySeparator = ", "

// AddressRecord is a row awaiting coordinates. AddressKey is the canonical
// address fingerprint computed upstream by the data store; an empty key
// means the row cannot be cached and is never resolved.
type AddressRecord struct {
	ID         int64
	Address    string
	Suburb     string
	State      string
	Postcode   string
	AddressKey string
}

// HasUsableParts reports whether the record carries enough address signal to
// be worth a provider call. State alone is too coarse to count.
func (r AddressRecord) HasUsableParts() bool {
	return Normalize(r.Address) != "" || Normalize(r.Suburb) != "" || Normalize(r.Postcode) != ""
}

// Normalize converts a scalar address fragment to its trimmed string form.
// Absent values (nil, invalid sql.NullString, blank strings) normalize to "".
// Numbers keep their textual form, so a zero postcode stays "0".
func Normalize(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case *string:
		if t == nil {
			return ""
		}
		s = *t
	case []byte:
		s = string(t)
	case sql.NullString:
		if !t.Valid {
			return ""
		}
		s = t.String
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return strings.TrimSpace(s)
}

// JoinCandidate normalizes parts, drops the absent ones and joins the
// survivors followed by country. It returns "" when nothing survives.
func JoinCandidate(country string, parts ...any) string {
	clean := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if s := Normalize(p); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return ""
	}
	return strings.Join(append(clean, country), QuerySeparator)
}

// BuildFallbackCandidates returns the progressively looser queries for an
// address, most specific first:
//
//	address, suburb, state, postcode
//	suburb, state, postcode
//	suburb, state
//	postcode, state
//	state
//
// Blank candidates stay in place as "" so positions are stable.
func BuildFallbackCandidates(address, suburb, state, postcode, country string) []string {
	return []string{
		JoinCandidate(country, address, suburb, state, postcode),
		JoinCandidate(country, suburb, state, postcode),
		JoinCandidate(country, suburb, state),
		JoinCandidate(country, postcode, state),
		JoinCandidate(country, state),
	}
}
