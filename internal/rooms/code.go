package rooms

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// CodeLength is the fixed size of a room join code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NormalizeCode uppercases and trims code and reports whether the result is
// a well-formed join code.
func NormalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code, codePattern.MatchString(code)
}

// CodeGenerator produces candidate join codes.
type CodeGenerator func() (string, error)

// RandomCode draws a code from crypto/rand.
func RandomCode() (string, error) {
	return codeFrom(rand.Reader)
}

// codeFrom rejects bytes above the largest multiple of the alphabet size so
// every symbol is equally likely.
func codeFrom(r io.Reader) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
