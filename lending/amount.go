package lending

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string like "1.5" into the integer
// smallest-unit amount for a mint with the given precision, e.g.
// ParseAmount("1.0", 9) = 1_000_000_000. It rejects negative values, excess
// fractional digits, and anything that is not a plain decimal number.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, s, decimals)
	}

	// Right-pad the fraction to the mint's precision and parse the two parts
	// as one integer.
	frac += strings.Repeat("0", int(decimals)-len(frac))

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	var f uint64
	if frac != "" {
		f, err = strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	scale := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	if w > (^uint64(0)-f)/scale {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, s)
	}
	return w*scale + f, nil
}

// WholeUnits returns n whole tokens in smallest units, e.g.
// WholeUnits(10, 9) = 10_000_000_000.
func WholeUnits(n uint64, decimals uint8) uint64 {
	scale := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	return n * scale
}

// FormatAmount renders a smallest-unit amount as a decimal string, trimming
// trailing fractional zeros.
func FormatAmount(amount uint64, decimals uint8) string {
	scale := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	whole := amount / scale
	frac := amount % scale
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := fmt.Sprintf("%0*d", decimals, frac)
	fs = strings.TrimRight(fs, "0")
	return strconv.FormatUint(whole, 10) + "." + fs
}
