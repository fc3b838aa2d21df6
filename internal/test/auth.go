package test

import (
	"context"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	pkgAuth "github.com/polkiloo/dispatchdesk/internal/pkg/auth"
)

// StrategyStub issues and resolves tokens via function overrides.
type StrategyStub struct {
	IssueFn   func(model.Actor) (string, error)
	ResolveFn func(string) (model.Actor, error)
	NameVal   string
}

// IssueToken returns the actor id as token unless overridden.
func (s StrategyStub) IssueToken(actor model.Actor) (string, error) {
	if s.IssueFn != nil {
		return s.IssueFn(actor)
	}
	return actor.ID, nil
}

// ResolveActor returns a verified active dispatcher named by the token unless overridden.
func (s StrategyStub) ResolveActor(token string) (model.Actor, error) {
	if s.ResolveFn != nil {
		return s.ResolveFn(token)
	}
	if token == "" {
		return model.Actor{}, pkgAuth.ErrInvalidToken
	}
	return model.Actor{ID: token, Role: model.RoleDispatcher, IsVerified: true, IsActive: true}, nil
}

// Name returns the strategy identifier used in tests.
func (s StrategyStub) Name() string {
	if s.NameVal != "" {
		return s.NameVal
	}
	return "stub"
}

// ActorResolverStub implements the middleware resolution contract.
type ActorResolverStub struct {
	Actor     model.Actor
	Err       error
	ResolveFn func(context.Context, string) (model.Actor, error)
}

// ResolveActor either delegates to the override or returns the configured result.
func (s ActorResolverStub) ResolveActor(ctx context.Context, token string) (model.Actor, error) {
	if s.ResolveFn != nil {
		return s.ResolveFn(ctx, token)
	}
	if s.Err != nil {
		return model.Actor{}, s.Err
	}
	return s.Actor, nil
}

var _ pkgAuth.Strategy = StrategyStub{}

// SeededStrategy resolves the well-known seeded actors by their id used as token.
func SeededStrategy() StrategyStub {
	return StrategyStub{ResolveFn: func(token string) (model.Actor, error) {
		for _, a := range []model.Actor{Dispatcher, Admin, Master} {
			if a.ID == token {
				return a, nil
			}
		}
		return model.Actor{}, pkgAuth.ErrInvalidToken
	}}
}
