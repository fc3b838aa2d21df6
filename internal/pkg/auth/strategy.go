package auth

import (
	"time"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Strategy issues and resolves actor tokens.
type Strategy interface {
	IssueToken(actor model.Actor) (string, error)
	ResolveActor(token string) (model.Actor, error)
	Name() string
}

type Options struct {
	TTL    time.Duration
	Issuer string
}
