package core

import (
	"fmt"
	"math/big"
)

// DecodeBool turns a value returned by user decryption into a boolean.
//
// Accepted encodings:
//
//	bool                      true / false
//	int, int64, uint64, ...   1 / 0
//	*big.Int, big.Int         1 / 0
//	string                    "true" / "false" / "1" / "0"
//
// Any other shape or value is rejected with ErrUnexpectedPlaintext.
func DecodeBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int:
		return bitToBool(int64(val), v)
	case int8:
		return bitToBool(int64(val), v)
	case int16:
		return bitToBool(int64(val), v)
	case int32:
		return bitToBool(int64(val), v)
	case int64:
		return bitToBool(val, v)
	case uint:
		return bitToBool(int64(val), v)
	case uint8:
		return bitToBool(int64(val), v)
	case uint16:
		return bitToBool(int64(val), v)
	case uint32:
		return bitToBool(int64(val), v)
	case uint64:
		if val > 1 {
			return false, fmt.Errorf("%w: %v", ErrUnexpectedPlaintext, v)
		}
		return val == 1, nil
	case *big.Int:
		if val == nil || !val.IsInt64() {
			return false, fmt.Errorf("%w: %v", ErrUnexpectedPlaintext, v)
		}
		return bitToBool(val.Int64(), v)
	case big.Int:
		return DecodeBool(&val)
	case string:
		switch val {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v (%T)", ErrUnexpectedPlaintext, v, v)
}

func bitToBool(n int64, raw any) (bool, error) {
	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrUnexpectedPlaintext, raw)
}

// Outcome is the decrypted answer to "is the submitted age at least 18".
type Outcome struct {
	Qualified bool
}

func (o Outcome) Label() string {
	if o.Qualified {
		return "Qualified (Age 18+)"
	}
	return "Not Qualified (Under 18)"
}
