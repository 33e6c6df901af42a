package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/codec"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/Klingon-tech/klingnet-ledger/pkg/verifier"
)

// Codec decodes transactions whose checker type is C.
type Codec[C codec.Encodable] struct {
	// Verifiers lists the verifier kinds outputs may carry.
	Verifiers *verifier.Registry
	// Checker decodes the trailing checker value.
	Checker func(d *codec.Decoder) (C, error)
}

// DecodeOutput reads an output written by Output.EncodeTo.
func (c Codec[C]) DecodeOutput(d *codec.Decoder) (Output, error) {
	return DecodeOutput(d, c.Verifiers)
}

// DecodeOutputBytes decodes a standalone output encoding.
func (c Codec[C]) DecodeOutputBytes(b []byte) (Output, error) {
	return DecodeOutputBytes(b, c.Verifiers)
}

// DecodeOutput reads an output whose verifier must be one of the kinds
// allowed by verifiers.
func DecodeOutput(d *codec.Decoder, verifiers *verifier.Registry) (Output, error) {
	var out Output
	d.Value(&out.Payload)
	if err := d.Err(); err != nil {
		return Output{}, err
	}
	v, err := verifiers.Decode(d)
	if err != nil {
		return Output{}, err
	}
	out.Verifier = v
	return out, nil
}

// DecodeOutputBytes decodes a standalone output encoding. Trailing bytes
// are an error.
func DecodeOutputBytes(b []byte, verifiers *verifier.Registry) (Output, error) {
	d := codec.NewDecoder(b)
	out, err := DecodeOutput(d, verifiers)
	if err != nil {
		return Output{}, err
	}
	if err := d.Finish(); err != nil {
		return Output{}, err
	}
	return out, nil
}

// DecodeFrom reads a transaction from d.
func (c Codec[C]) DecodeFrom(d *codec.Decoder) (Transaction[C], error) {
	var t Transaction[C]

	n := d.Len()
	if err := d.Err(); err != nil {
		return t, fmt.Errorf("inputs: %w", err)
	}
	if n > config.MaxTxInputs {
		return t, fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, n, config.MaxTxInputs)
	}
	if n > 0 {
		t.Inputs = make([]Input, n)
		for i := range t.Inputs {
			d.Value(&t.Inputs[i])
		}
		if err := d.Err(); err != nil {
			return t, fmt.Errorf("inputs: %w", err)
		}
	}

	t.Peeks = types.DecodeRefs(d)
	if err := d.Err(); err != nil {
		return t, fmt.Errorf("peeks: %w", err)
	}
	t.Evictions = types.DecodeRefs(d)
	if err := d.Err(); err != nil {
		return t, fmt.Errorf("evictions: %w", err)
	}

	n = d.Len()
	if err := d.Err(); err != nil {
		return t, fmt.Errorf("outputs: %w", err)
	}
	if n > config.MaxTxOutputs {
		return t, fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, n, config.MaxTxOutputs)
	}
	if n > 0 {
		t.Outputs = make([]Output, n)
		for i := range t.Outputs {
			out, err := c.DecodeOutput(d)
			if err != nil {
				return t, fmt.Errorf("output %d: %w", i, err)
			}
			t.Outputs[i] = out
		}
	}

	chk, err := c.Checker(d)
	if err != nil {
		return t, fmt.Errorf("checker: %w", err)
	}
	if err := d.Err(); err != nil {
		return t, fmt.Errorf("checker: %w", err)
	}
	t.Checker = chk
	return t, nil
}

// Decode decodes a standalone transaction encoding. Trailing bytes are an error.
func (c Codec[C]) Decode(b []byte) (Transaction[C], error) {
	d := codec.NewDecoder(b)
	t, err := c.DecodeFrom(d)
	if err != nil {
		return Transaction[C]{}, err
	}
	if err := d.Finish(); err != nil {
		return Transaction[C]{}, err
	}
	return t, nil
}
