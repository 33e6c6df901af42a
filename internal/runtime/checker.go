package runtime

import (
	"github.com/cockroachdb/errors"

	"github.com/Klingon-tech/klingnet-ledger/internal/executive"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/constraint"
	"github.com/Klingon-tech/klingnet-ledger/pkg/inherent"
	"github.com/Klingon-tech/klingnet-ledger/pkg/timestamp"
)

// Wire tags of the aggregate checker variants.
const (
	TagTimestamp uint8 = iota
	TagCleanUp
	TagTest
)

// ErrUnknownChecker is returned when a checker tag names no variant.
var ErrUnknownChecker = errors.New("unknown checker tag")

// Checker is the aggregate checker of the runtime: exactly one of
// TimestampChecker, CleanUpChecker or TestChecker. It encodes as a tag byte
// followed by the variant's own encoding.
type Checker interface {
	executive.Checker
	Tag() uint8
}

// TimestampChecker sets the block timestamp. It is the runtime's only
// inherent piece.
type TimestampChecker struct {
	inherent.Adapter[timestamp.SetTimestamp]
}

// Tag implements Checker.
func (TimestampChecker) Tag() uint8 { return TagTimestamp }

// EncodeTo writes the tag and the inner checker.
func (c TimestampChecker) EncodeTo(e *codec.Encoder) {
	e.Uint8(TagTimestamp)
	c.Adapter.EncodeTo(e)
}

// CleanUpChecker evicts old timestamps.
type CleanUpChecker struct {
	constraint.Simple[timestamp.CleanUpTimestamp]
}

// Tag implements Checker.
func (CleanUpChecker) Tag() uint8 { return TagCleanUp }

// IsInherent implements executive.Checker.
func (CleanUpChecker) IsInherent() bool { return false }

// EncodeTo writes the tag and the inner checker.
func (c CleanUpChecker) EncodeTo(e *codec.Encoder) {
	e.Uint8(TagCleanUp)
	c.Simple.EncodeTo(e)
}

// TestChecker accepts or rejects unconditionally.
type TestChecker struct {
	constraint.Simple[constraint.TestChecker]
}

// NewTestChecker returns a TestChecker that passes when checks is true.
func NewTestChecker(checks bool) TestChecker {
	return TestChecker{constraint.Promote(constraint.TestChecker{Checks: checks})}
}

// Tag implements Checker.
func (TestChecker) Tag() uint8 { return TagTest }

// IsInherent implements executive.Checker.
func (TestChecker) IsInherent() bool { return false }

// EncodeTo writes the tag and the inner checker.
func (c TestChecker) EncodeTo(e *codec.Encoder) {
	e.Uint8(TagTest)
	c.Simple.EncodeTo(e)
}

// DecodeChecker returns a decoder for the aggregate checker. Decoded
// timestamp checkers are bound to cfg.
func DecodeChecker(cfg timestamp.Config) func(*codec.Decoder) (Checker, error) {
	setTimestamp := inherent.DecodeAdapter(timestamp.DecodeSetTimestamp(cfg))
	cleanUp := timestamp.DecodeCleanUpTimestamp(cfg)

	return func(d *codec.Decoder) (Checker, error) {
		tag := d.Uint8()
		if err := d.Err(); err != nil {
			return nil, err
		}
		switch tag {
		case TagTimestamp:
			a, err := setTimestamp(d)
			if err != nil {
				return nil, err
			}
			return TimestampChecker{a}, nil
		case TagCleanUp:
			c, err := cleanUp(d)
			if err != nil {
				return nil, err
			}
			return CleanUpChecker{constraint.Promote(c)}, nil
		case TagTest:
			var c constraint.TestChecker
			d.Value(&c)
			if err := d.Err(); err != nil {
				return nil, err
			}
			return TestChecker{constraint.Promote(c)}, nil
		default:
			return nil, errors.Wrapf(ErrUnknownChecker, "tag %d", tag)
		}
	}
}
