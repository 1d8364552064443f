package view

import (
	"context"

	"github.com/isdelr/notekeeper/internal/models"
)

// Locals are the per-request values every template can see.
type Locals struct {
	Success  []string
	Error    []string
	Deleted  []string
	AppName  string
	CurrUser *models.User
	Domain   string
}

type localsKey struct{}

// WithLocals returns a copy of ctx carrying l.
func WithLocals(ctx context.Context, l Locals) context.Context {
	return context.WithValue(ctx, localsKey{}, l)
}

// LocalsFrom returns the locals attached to ctx, or the zero value.
func LocalsFrom(ctx context.Context) Locals {
	l, _ := ctx.Value(localsKey{}).(Locals)
	return l
}
