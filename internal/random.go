package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// NewChallengeCode returns a uniformly random numeric code of the requested
// width with a non-zero leading digit, e.g. "358214" for 6 digits. The
// non-zero lead keeps codes unambiguous when users type or read them back.
func NewChallengeCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid challenge code digits")
	}

	lower := int64(1)
	for i := 1; i < digits; i++ {
		lower *= 10
	}
	span := big.NewInt(9 * lower)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	code := strconv.FormatInt(lower+n.Int64(), 10)
	if len(code) != digits {
		return "", errors.New("invalid challenge code length")
	}
	return code, nil
}
