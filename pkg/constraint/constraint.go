// Package constraint defines the checkers that decide whether a transaction
// as a whole is valid.
//
// A checker does not compute the resulting state. It inspects the proposed
// transition (what is consumed, read, evicted and created) and either accepts
// it with a priority or rejects it. Any transient information the check needs
// travels in the fields of the checker value itself.
package constraint

import (
	"errors"

	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/dynamic"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// Priority orders admissible transactions in the pool. Higher is better. It
// carries no validity meaning.
type Priority uint64

// SimpleChecker sees only the payloads of the outputs involved.
//
// Arguments are always ordered inputs, peeks, evictions, outputs.
type SimpleChecker interface {
	codec.Encodable
	CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (Priority, error)
}

// Checker sees whole outputs, verifiers included. Pieces implement it
// directly only when they must inspect verifiers; everything else implements
// SimpleChecker and is promoted with Promote.
type Checker interface {
	codec.Encodable
	Check(inputs, peeks, evictions, outputs []tx.Output) (Priority, error)
}

// Simple promotes a SimpleChecker to a Checker by stripping every output
// down to its payload. It encodes exactly like S.
type Simple[S SimpleChecker] struct {
	Inner S
}

// Promote wraps s as a full Checker.
func Promote[S SimpleChecker](s S) Simple[S] {
	return Simple[S]{Inner: s}
}

// Check strips the outputs and delegates to the inner checker.
func (s Simple[S]) Check(inputs, peeks, evictions, outputs []tx.Output) (Priority, error) {
	return s.Inner.CheckData(
		tx.Payloads(inputs),
		tx.Payloads(peeks),
		tx.Payloads(evictions),
		tx.Payloads(outputs),
	)
}

// CheckData exposes the inner simple check.
func (s Simple[S]) CheckData(inputs, peeks, evictions, outputs []dynamic.Data) (Priority, error) {
	return s.Inner.CheckData(inputs, peeks, evictions, outputs)
}

// EncodeTo writes the inner checker unchanged.
func (s Simple[S]) EncodeTo(e *codec.Encoder) {
	s.Inner.EncodeTo(e)
}

// ErrTestCheckerFailed is returned by a TestChecker configured to fail.
var ErrTestCheckerFailed = errors.New("test checker configured to fail")

// TestChecker passes with zero priority or fails, depending on Checks.
// Useful for exercising the executive and pool without a real piece.
type TestChecker struct {
	Checks bool
}

// CheckData implements SimpleChecker.
func (c TestChecker) CheckData(_, _, _, _ []dynamic.Data) (Priority, error) {
	if c.Checks {
		return 0, nil
	}
	return 0, ErrTestCheckerFailed
}

// EncodeTo writes one strict boolean byte.
func (c TestChecker) EncodeTo(e *codec.Encoder) {
	e.Bool(c.Checks)
}

// DecodeFrom reads a TestChecker.
func (c *TestChecker) DecodeFrom(d *codec.Decoder) error {
	c.Checks = d.Bool()
	return d.Err()
}
