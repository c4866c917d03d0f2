package collective

import (
	"encoding/base64"
	"fmt"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Floats keep their full width so every rank reduces exactly the bits that
	// were sent.
	encMode, err = cbor.EncOptions{ShortestFloat: cbor.ShortestFloatNone}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func encodeBuffer(buf []float64) ([]byte, error) {
	if buf == nil {
		buf = []float64{}
	}

	return encMode.Marshal(buf)
}

func decodeBuffer(data []byte) ([]float64, error) {
	var buf []float64
	if err := decMode.Unmarshal(data, &buf); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}
	if buf == nil {
		buf = []float64{}
	}

	return buf, nil
}

// decodeField reads a CBOR buffer that travelled as base64 inside a JSON
// message. encoding/json renders []byte that way.
func decodeField(v any) ([]float64, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: data is %T", errors.ErrInvalidData, v)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}

	return decodeBuffer(data)
}
