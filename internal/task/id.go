package task

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

type idKind int

const (
	kindNone idKind = iota
	kindLocal
	kindRemote
)

// ID identifies a task. Exactly one kind is set: a local token generated
// on this client and never seen by the server, or a server-assigned id.
// The zero ID is invalid.
type ID struct {
	kind   idKind
	token  string
	remote int64
}

// NewLocalID generates a fresh local identifier.
func NewLocalID() ID {
	return ID{kind: kindLocal, token: uuid.NewString()}
}

// LocalID wraps a client-generated token.
func LocalID(token string) ID {
	return ID{kind: kindLocal, token: token}
}

// RemoteID wraps a server-assigned id.
func RemoteID(id int64) ID {
	return ID{kind: kindRemote, remote: id}
}

// IsLocal reports whether this is a client-generated identifier.
func (id ID) IsLocal() bool { return id.kind == kindLocal }

// IsRemote reports whether this is a server-assigned identifier.
func (id ID) IsRemote() bool { return id.kind == kindRemote }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return id.kind == kindNone }

// Token returns the local token. Only meaningful when IsLocal.
func (id ID) Token() string { return id.token }

// Remote returns the server-assigned id. Only meaningful when IsRemote.
func (id ID) Remote() int64 { return id.remote }

// Key returns a stable string form usable as a store key:
// "local:<token>" or "remote:<id>".
func (id ID) Key() string {
	switch id.kind {
	case kindLocal:
		return "local:" + id.token
	case kindRemote:
		return "remote:" + strconv.FormatInt(id.remote, 10)
	default:
		return ""
	}
}

// String implements fmt.Stringer for logging.
func (id ID) String() string { return id.Key() }

// idJSON is the wire form of an ID. The kind tag is explicit so a
// malformed token can never be mistaken for a server id.
type idJSON struct {
	Kind  string `json:"kind"`
	Token string `json:"token,omitempty"`
	ID    int64  `json:"id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case kindLocal:
		return json.Marshal(idJSON{Kind: "local", Token: id.token})
	case kindRemote:
		return json.Marshal(idJSON{Kind: "remote", ID: id.remote})
	default:
		return nil, fmt.Errorf("cannot marshal zero task ID")
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var raw idJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse task ID: %w", err)
	}
	switch raw.Kind {
	case "local":
		if raw.Token == "" {
			return fmt.Errorf("local task ID requires a token")
		}
		*id = LocalID(raw.Token)
	case "remote":
		if raw.ID <= 0 {
			return fmt.Errorf("remote task ID must be positive (got %d)", raw.ID)
		}
		*id = RemoteID(raw.ID)
	default:
		return fmt.Errorf("unknown task ID kind %q", raw.Kind)
	}
	return nil
}
