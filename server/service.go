package server

import (
	"context"
	"fmt"
	"reflect"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type // nil for streaming methods
	streaming bool
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	streamType = reflect.TypeOf((*Stream)(nil))
)

// newService scans rcvr for handler methods:
//
//	func (r *T) Name(args *Args, reply *Reply) error       unary
//	func (r *T) Name(args *Args, stream *server.Stream) error server-streaming
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}
	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: %s has no handler methods", name)
	}
	return svc, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1).Kind() != reflect.Ptr || mt.In(2).Kind() != reflect.Ptr {
			continue
		}

		m := &methodType{method: method, ArgType: mt.In(1).Elem()}
		if mt.In(2) == streamType {
			m.streaming = true
		} else {
			m.ReplyType = mt.In(2).Elem()
		}
		s.method[method.Name] = m
	}
}

func (s *service) call(m *methodType, argv, second reflect.Value) error {
	results := m.method.Func.Call([]reflect.Value{s.rcvr, argv, second})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// Stream is handed to server-streaming handlers.
type Stream struct {
	ctx  context.Context
	send func(any) error
}

// Send writes one element to the client.
func (s *Stream) Send(m any) error { return s.send(m) }

// Context is done when the client goes away or the server stops.
func (s *Stream) Context() context.Context { return s.ctx }
