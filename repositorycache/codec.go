package repositorycache

import (
	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// codecVersion prefixes every cache value. Bump it when cachedUser changes
// shape; entries written with another version read as misses.
const codecVersion byte = 1

var (
	errEmptyEntry      = errors.New("empty cache entry")
	errUnknownVersion  = errors.New("unknown cache entry version")
	errMalformedEntity = errors.New("malformed cached user")
)

// cachedUser is the wire form of a user. Fields are encoded positionally
// in the order id, name, email, age.
type cachedUser struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID    string
	Name  string
	Email string
	Age   int
}

func toCached(u *users.User) cachedUser {
	return cachedUser{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
	}
}

func (c cachedUser) toUser() (*users.User, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return nil, errors.Wrap(errMalformedEntity, err.Error())
	}
	return &users.User{
		ID:    id,
		Name:  c.Name,
		Email: c.Email,
		Age:   c.Age,
	}, nil
}

func encodeUser(u *users.User) ([]byte, error) {
	return encodeEnvelope(toCached(u))
}

func encodeUsers(list []*users.User) ([]byte, error) {
	wire := make([]cachedUser, len(list))
	for i, u := range list {
		wire[i] = toCached(u)
	}
	return encodeEnvelope(wire)
}

func decodeUser(data []byte) (*users.User, error) {
	var wire cachedUser
	if err := decodeEnvelope(data, &wire); err != nil {
		return nil, err
	}
	return wire.toUser()
}

func decodeUsers(data []byte) ([]*users.User, error) {
	var wire []cachedUser
	if err := decodeEnvelope(data, &wire); err != nil {
		return nil, err
	}
	out := make([]*users.User, 0, len(wire))
	for _, w := range wire {
		u, err := w.toUser()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func encodeEnvelope(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode cache entry")
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, codecVersion)
	return append(out, payload...), nil
}

func decodeEnvelope(data []byte, v any) error {
	if len(data) < 2 {
		return errEmptyEntry
	}
	if data[0] != codecVersion {
		return errors.Wrapf(errUnknownVersion, "version %d", data[0])
	}
	if err := msgpack.Unmarshal(data[1:], v); err != nil {
		return errors.Wrap(err, "decode cache entry")
	}
	return nil
}
