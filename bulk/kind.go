package bulk

import (
	"strings"
	"time"

	"github.com/joomcode/redisbulk/redis"
)

// Kind is a mutation applied to every matched key.
type Kind string

const (
	// Delete removes keys with DEL.
	Delete Kind = "delete"
	// Unlink removes keys with UNLINK, memory is reclaimed in background.
	Unlink Kind = "unlink"
	// ExpireSet sets time to live with EXPIRE.
	ExpireSet Kind = "expire"
	// Persist removes time to live with PERSIST.
	Persist Kind = "persist"
)

// Kinds lists supported kinds.
var Kinds = []Kind{Delete, Unlink, ExpireSet, Persist}

// ParseKind parses kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", ErrUnsupportedKind.New("unsupported action kind %q", s).WithProperty(EKKind, s)
}

// Params are kind specific parameters.
type Params struct {
	// TTL for ExpireSet. Whole seconds are used.
	TTL time.Duration
}

// Validate checks that params fit kind.
func (k Kind) Validate(p Params) error {
	switch k {
	case Delete, Unlink, Persist:
		return nil
	case ExpireSet:
		if p.TTL < time.Second {
			return ErrInvalidParams.New("ttl should be at least 1s, got %s", p.TTL).WithProperty(EKKind, string(k))
		}
		return nil
	}
	return ErrUnsupportedKind.New("unsupported action kind %q", string(k)).WithProperty(EKKind, string(k))
}

// CommandBuilder turns batch of keys into mutation commands.
type CommandBuilder interface {
	// PrepareCommands returns one command per key, in order.
	PrepareCommands(keys [][]byte) []redis.Request
}

// Builder returns CommandBuilder for kind.
func (k Kind) Builder(p Params) (CommandBuilder, error) {
	if err := k.Validate(p); err != nil {
		return nil, err
	}
	switch k {
	case Delete:
		return keyCommand("DEL"), nil
	case Unlink:
		return keyCommand("UNLINK"), nil
	case Persist:
		return keyCommand("PERSIST"), nil
	}
	return expireCommand(int64(p.TTL / time.Second)), nil
}

type keyCommand string

func (c keyCommand) PrepareCommands(keys [][]byte) []redis.Request {
	reqs := make([]redis.Request, len(keys))
	for i, k := range keys {
		reqs[i] = redis.Req(string(c), k)
	}
	return reqs
}

type expireCommand int64

func (c expireCommand) PrepareCommands(keys [][]byte) []redis.Request {
	reqs := make([]redis.Request, len(keys))
	for i, k := range keys {
		reqs[i] = redis.Req("EXPIRE", k, int64(c))
	}
	return reqs
}
