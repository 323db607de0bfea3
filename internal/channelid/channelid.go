// Package channelid converts between the external "-100..." form of channel
// ids used by the dashboard and the bare ids used by MTProto.
package channelid

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const offset = 1_000_000_000_000

var ErrEmpty = errors.New("channel id is empty")

// Ref is a parsed channel reference: either a numeric id or a public
// username that still has to be resolved.
type Ref struct {
	ID       int64
	Username string
}

func (r Ref) String() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

// Parse accepts "-100<digits>", "<digits>" and "-<digits>" and returns the
// external id. External ids always carry 13 digits after the sign; a negative
// id starting with 100 that is not a full external id is rejected.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}

	negative := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("invalid channel id %q", s)
	}

	if negative && strings.HasPrefix(digits, "100") {
		// A shorter "-100..." is either a truncated external id or a bare id
		// that happens to start with 100; both readings are guesses.
		if len(digits) != 13 {
			return 0, fmt.Errorf("ambiguous channel id %q: use the full -100 form or the bare id", s)
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid channel id %q: %w", s, err)
		}
		return id, nil
	}

	bare, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q: %w", s, err)
	}
	if bare == 0 || bare >= offset {
		return 0, fmt.Errorf("invalid channel id %q", s)
	}
	return External(bare), nil
}

// ParseRef accepts anything Parse does plus "@name", "t.me/name" and
// "https://t.me/name".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, ErrEmpty
	}

	if id, err := Parse(s); err == nil {
		return Ref{ID: id}, nil
	}

	name := s
	switch {
	case strings.HasPrefix(name, "@"):
		name = name[1:]
	case strings.Contains(name, "t.me/"):
		if !strings.Contains(name, "://") {
			name = "https://" + name
		}
		u, err := url.Parse(name)
		if err != nil {
			return Ref{}, fmt.Errorf("invalid channel link %q: %w", s, err)
		}
		name = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[:i]
		}
	}

	if !validUsername(name) {
		return Ref{}, fmt.Errorf("invalid channel reference %q", s)
	}
	return Ref{Username: name}, nil
}

// Bare strips the -100 prefix. Ids already in bare form are returned as is.
func Bare(id int64) int64 {
	if id < 0 {
		return -id - offset
	}
	return id
}

// External adds the -100 prefix to a bare MTProto channel id.
func External(bare int64) int64 {
	if bare < 0 {
		return bare
	}
	return -(offset + bare)
}

// Format renders an external id.
func Format(id int64) string {
	return strconv.FormatInt(id, 10)
}

func validUsername(name string) bool {
	if len(name) < 4 || len(name) > 32 {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '_':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
