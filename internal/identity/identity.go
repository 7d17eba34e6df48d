// Package identity resolves who is acting on a request: a signed-in user or an
// anonymous browser identified by a long-lived client cookie.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMissingClientID is returned when a request carries neither a valid bearer
// token nor a client cookie.
var ErrMissingClientID = errors.New("missing client id")

type Kind int

const (
	KindAnonymous Kind = iota + 1
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindAnonymous:
		return "anonymous"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Identity is the unit of deduplication for likes and views. The zero value is
// not a valid identity.
type Identity struct {
	kind Kind
	id   uuid.UUID
}

func User(userID uuid.UUID) Identity {
	return Identity{kind: KindUser, id: userID}
}

func Anonymous(clientID uuid.UUID) Identity {
	return Identity{kind: KindAnonymous, id: clientID}
}

func (i Identity) Kind() Kind     { return i.kind }
func (i Identity) ID() uuid.UUID  { return i.id }
func (i Identity) IsUser() bool   { return i.kind == KindUser }
func (i Identity) IsZero() bool   { return i.kind == 0 }
func (i Identity) String() string { return fmt.Sprintf("%s:%s", i.kind, i.id) }
