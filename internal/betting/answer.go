package betting

import (
	"errors"
	"fmt"
	"math"

	"github.com/OddsClaw/OddsClaw/internal/market"
)

// ErrMalformedAnswer marks an answer rejected at the decode boundary.
var ErrMalformedAnswer = errors.New("betting: malformed answer")

// Answer is a validated structured answer.
type Answer struct {
	Side       market.Side
	Confidence int
	Rationale  string
}

// DecodeAnswer validates the top-level fields of a structured answer. The
// side must be exactly "yes" or "no", the confidence a whole number in
// [0,100]; anything else is malformed and never acted on.
func DecodeAnswer(fields map[string]any) (*Answer, error) {
	rawSide, ok := fields["answer"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing or non-string answer field", ErrMalformedAnswer)
	}
	side, err := market.ParseSide(rawSide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}

	confidence, err := intField(fields, "confidence")
	if err != nil {
		return nil, err
	}
	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("%w: confidence %d out of range [0,100]", ErrMalformedAnswer, confidence)
	}

	rationale, ok := fields["rationale"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing or non-string rationale field", ErrMalformedAnswer)
	}

	return &Answer{Side: side, Confidence: confidence, Rationale: rationale}, nil
}

func intField(fields map[string]any, name string) (int, error) {
	switch v := fields[name].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s %v is not a whole number", ErrMalformedAnswer, name, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: missing or non-integer %s field", ErrMalformedAnswer, name)
	}
}
