// Package result classifies the result codes embedded in vehicle server responses.
//
// Every domain defines its own code enum. A Table records which code means success
// and which codes mean the transport (not the vehicle) failed; everything else is a
// domain failure. The classification algorithm is shared by all domains.
package result

import (
	"errors"
	"fmt"
	"sort"
)

// Result is the {code, message} pair carried by unary responses and stream elements.
type Result struct {
	Code    int32  `json:"result"`
	Message string `json:"result_str"`
}

// Kind is the three-way classification of an outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindDomainFailure
	KindInfrastructureFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDomainFailure:
		return "domain_failure"
	case KindInfrastructureFailure:
		return "infrastructure_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Table is the per-domain classification table. It is immutable after NewTable.
type Table struct {
	domain  string
	success int32
	infra   map[int32]struct{}
	names   map[int32]string
}

// NewTable builds the table for domain. names maps codes to their enum names and is
// only used for error text.
func NewTable(domain string, success int32, names map[int32]string, infrastructure ...int32) *Table {
	t := &Table{
		domain:  domain,
		success: success,
		infra:   make(map[int32]struct{}, len(infrastructure)),
		names:   make(map[int32]string, len(names)),
	}
	for _, c := range infrastructure {
		t.infra[c] = struct{}{}
	}
	for c, n := range names {
		t.names[c] = n
	}
	return t
}

func (t *Table) Domain() string { return t.domain }

// Name returns the enum name of code, or "CODE_<n>" for codes the table does not know.
func (t *Table) Name(code int32) string {
	if n, ok := t.names[code]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", code)
}

// Kind classifies code. It is a pure function of the code.
func (t *Table) Kind(code int32) Kind {
	if code == t.success {
		return KindSuccess
	}
	if _, ok := t.infra[code]; ok {
		return KindInfrastructureFailure
	}
	return KindDomainFailure
}

// Classify turns a received result into nil, *DomainError or *InfraError.
func (t *Table) Classify(code int32, msg string) error {
	switch t.Kind(code) {
	case KindSuccess:
		return nil
	case KindInfrastructureFailure:
		return &InfraError{Op: t.domain, Code: code, Message: msg, name: t.Name(code)}
	default:
		return &DomainError{Domain: t.domain, Code: code, Name: t.Name(code), Message: msg}
	}
}

// ClassifyResult is Classify for a decoded Result. A nil result counts as success.
func (t *Table) ClassifyResult(r *Result) error {
	if r == nil {
		return nil
	}
	return t.Classify(r.Code, r.Message)
}

// InfrastructureCodes returns the sorted infrastructure codes of the table.
func (t *Table) InfrastructureCodes() []int32 {
	codes := make([]int32, 0, len(t.infra))
	for c := range t.infra {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// DomainError is a well-formed rejection from the vehicle. It is never retried.
type DomainError struct {
	Domain  string
	Code    int32
	Name    string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Domain, e.Name)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Name, e.Message)
}

// InfraError means the call did not reach the vehicle or its answer was lost. Err is
// the underlying transport error when there is one.
type InfraError struct {
	Op      string
	Code    int32
	Message string
	Err     error

	name string
}

func (e *InfraError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: infrastructure failure: %v", e.Op, e.Err)
	case e.name != "" && e.Message != "":
		return fmt.Sprintf("%s: infrastructure failure: %s: %s", e.Op, e.name, e.Message)
	case e.name != "":
		return fmt.Sprintf("%s: infrastructure failure: %s", e.Op, e.name)
	default:
		return fmt.Sprintf("%s: infrastructure failure: %s", e.Op, e.Message)
	}
}

func (e *InfraError) Unwrap() error { return e.Err }

// FromTransport wraps a transport-level error as an infrastructure failure. Errors
// that are already classified are returned unchanged.
func FromTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	var ie *InfraError
	if errors.As(err, &de) || errors.As(err, &ie) {
		return err
	}
	return &InfraError{Op: op, Err: err}
}

// KindOf classifies an error returned by an adapter. Unclassified errors count as
// infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindSuccess
	}
	var de *DomainError
	if errors.As(err, &de) {
		return KindDomainFailure
	}
	return KindInfrastructureFailure
}

func IsDomain(err error) bool { return KindOf(err) == KindDomainFailure }

func IsInfrastructure(err error) bool { return KindOf(err) == KindInfrastructureFailure }

// Outcome is the classified result of one call.
type Outcome[T any] struct {
	Value T
	Err   error
}

func Success[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

func Failure[T any](err error) Outcome[T] { return Outcome[T]{Err: err} }

func (o Outcome[T]) Kind() Kind { return KindOf(o.Err) }

// Unwrap returns the outcome as a (value, error) pair.
func (o Outcome[T]) Unwrap() (T, error) { return o.Value, o.Err }
