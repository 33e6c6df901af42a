package timestamp

import "github.com/cockroachdb/errors"

// Checker errors.
var (
	ErrBadlyTyped                          = errors.New("timestamp: payload is not a timestamp")
	ErrMissingNewTimestamp                 = errors.New("timestamp: no output for the new timestamp")
	ErrNewTimestampWrongHeight             = errors.New("timestamp: new timestamp does not record the current block height")
	ErrTooManyOutputsWhileSettingTimestamp = errors.New("timestamp: setting the timestamp must create exactly one output")
	ErrPreviousTimestampWrongHeight        = errors.New("timestamp: new timestamp is not exactly one block after the previous one")
	ErrMissingPreviousTimestamp            = errors.New("timestamp: previous timestamp must be peeked")
	ErrInputsWhileSettingTimestamp         = errors.New("timestamp: setting the timestamp must not consume or evict outputs")
	ErrTimestampTooOld                     = errors.New("timestamp: new time is not far enough after the previous time")
	ErrCleanupRequiresOneReference         = errors.New("timestamp: cleanup must peek a reference timestamp")
	ErrCleanupCannotCreateState            = errors.New("timestamp: cleanup must not create outputs")
	ErrDontBeSoHasty                       = errors.New("timestamp: evicted timestamp is not old enough to clean up")
	ErrCleanupEvictionsOnly                = errors.New("timestamp: cleanup may only evict, not consume")
)

// Inherent check errors. Both are reported as fatal.
var (
	ErrTooFarInFuture    = errors.New("timestamp: block time is too far in the future")
	ErrMalformedInherent = errors.New("timestamp: inherent does not carry a timestamp output")
)
