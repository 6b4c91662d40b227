// Package rules implements the request validation pipeline of the
// authorization server. A rule checks one fact about an incoming protocol
// request (the state parameter, the client, the redirect URI, ...) and adds
// it as a Result to the ResultBag. The Manager runs an ordered subset of
// rules per endpoint, short-circuiting on the first protocol error.
package rules

import (
	"github.com/gematik/zero-op/oauth2"
)

// Result is one validated fact about a request.
type Result struct {
	Key   string
	Value any
}

func NewResult(key string, value any) *Result {
	return &Result{Key: key, Value: value}
}

func (r *Result) SetValue(value any) {
	r.Value = value
}

// ResultBag accumulates the Results produced by the rules that ran against
// a request. Lookup is by rule key; insertion order is irrelevant.
type ResultBag struct {
	results map[string]*Result
}

func NewResultBag() *ResultBag {
	return &ResultBag{results: make(map[string]*Result)}
}

func (b *ResultBag) Add(r *Result) {
	b.results[r.Key] = r
}

func (b *ResultBag) Has(key string) bool {
	_, ok := b.results[key]
	return ok
}

func (b *ResultBag) Get(key string) (*Result, bool) {
	r, ok := b.results[key]
	return r, ok
}

// GetOrFail returns the result for the given key. A missing key means a
// dependent rule ran without its prerequisite ever being registered; that
// is a configuration bug, not a protocol error, and raises a fault.
func (b *ResultBag) GetOrFail(key string) *Result {
	r, ok := b.results[key]
	if !ok {
		oauth2.Faultf("result '%s' was never produced; check the rule order of the calling endpoint", key)
	}
	return r
}

// Predefine seeds a fact already known to the endpoint, e.g. an already
// authenticated client, so dependent rules skip re-resolution.
func (b *ResultBag) Predefine(key string, value any) {
	b.results[key] = &Result{Key: key, Value: value}
}

// StringValue returns the result value for key as a string, or "" when the
// result is absent or holds a different type.
func (b *ResultBag) StringValue(key string) string {
	r, ok := b.results[key]
	if !ok {
		return ""
	}
	s, _ := r.Value.(string)
	return s
}
