package room

import (
	"github.com/pkg/errors"
)

// Ctx 传给 handler 的调用环境
type Ctx struct {
	S *Server
}

type Handler interface {
	Type() string
	Handle(ctx *Ctx, f *Frame, cl *Client) error
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(ctx *Ctx, f *Frame, cl *Client) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errors.Errorf("no handler for type=%s", f.Type)
	}
	return h.Handle(ctx, f, cl)
}
