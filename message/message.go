// Package message defines the call descriptor handed from a domain facade to the
// transport layer.
//
// A Descriptor is the "envelope" for every remote call: it names the gRPC method and
// carries the request payload. The transport never looks inside the payload; the
// configured codec turns it into bytes.
package message

import "strings"

// Descriptor identifies one remote operation and its request.
//
//   - Service: fully-qualified gRPC service, e.g. "mavsdk.rpc.action.ActionService"
//   - Method:  method name on that service, e.g. "Arm"
//   - Request: the request payload (encoding.BinaryMarshaler or proto.Message)
type Descriptor struct {
	Service string
	Method  string
	Request any
}

// New builds a descriptor for service/method carrying req. A nil req becomes Empty.
func New(service, method string, req any) Descriptor {
	if req == nil {
		req = &Empty{}
	}
	return Descriptor{Service: service, Method: method, Request: req}
}

// FullMethod returns the gRPC method path, "/Service/Method".
func (d Descriptor) FullMethod() string {
	return "/" + d.Service + "/" + d.Method
}

// String returns "Service.Method", the form used in logs and metric labels.
func (d Descriptor) String() string {
	return d.Service + "." + d.Method
}

// ParseFullMethod splits "/Service/Method" into its parts.
func ParseFullMethod(fullMethod string) (service, method string, ok bool) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndex(fullMethod, "/")
	if i <= 0 || i == len(fullMethod)-1 {
		return "", "", false
	}
	return fullMethod[:i], fullMethod[i+1:], true
}

// Empty is the request of every zero-argument operation.
type Empty struct{}

func (*Empty) MarshalBinary() ([]byte, error) { return []byte{}, nil }
func (*Empty) UnmarshalBinary([]byte) error   { return nil }
