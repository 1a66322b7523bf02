package gen

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/unknowntrojan/signature/pkg/pattern"
)

// ParseToken parses one pattern element. Wildcards are written as _, ? or ??.
// Literal bytes use Go integer syntax, so 0xB8, 184 and 0b1011_1000 are the
// same byte.
func ParseToken(tok string) (pattern.Slot, error) {
	switch tok {
	case "_", "?", "??":
		return pattern.Any, nil
	}
	v, err := strconv.ParseUint(tok, 0, 8)
	if err != nil {
		return pattern.Slot{}, errors.Wrapf(ErrMalformedArgs, "invalid byte %q", tok)
	}
	return pattern.Byte(byte(v)), nil
}

func ParseTokens(tokens []string) (pattern.Pattern, error) {
	if len(tokens) == 0 {
		return pattern.Pattern{}, errors.Wrap(ErrMalformedArgs, "no pattern bytes")
	}
	slots := make([]pattern.Slot, 0, len(tokens))
	for _, tok := range tokens {
		s, err := ParseToken(tok)
		if err != nil {
			return pattern.Pattern{}, err
		}
		slots = append(slots, s)
	}
	return pattern.New(slots...)
}

// ParseArgs splits a module name followed by pattern tokens.
func ParseArgs(args []string) (string, pattern.Pattern, error) {
	if len(args) == 0 || args[0] == "" {
		return "", pattern.Pattern{}, errors.Wrap(ErrMalformedArgs, "missing module name")
	}
	p, err := ParseTokens(args[1:])
	if err != nil {
		return "", pattern.Pattern{}, err
	}
	return args[0], p, nil
}
