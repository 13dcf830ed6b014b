package prescription

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/drfirst/go-clinicrx/internal/domain"
)

// MaxMilligrams is the highest dose the safety gate lets through.
const MaxMilligrams = 2000

// DosageExample is shown to staff next to a rejected dosage.
const DosageExample = "500 mg daily"

// Gate describes how the safety gate read a dosage string.
type Gate struct {
	// Applied is false when the text lacks "mg" or lacks any digit; such
	// text is never blocked.
	Applied bool
	// Digits are all ASCII digits of the text, in order.
	Digits     string
	Milligrams int64
	// Overflow is set when Digits does not fit in an int64.
	Overflow bool
}

// Exceeded reports whether the gate blocks the dosage.
func (g Gate) Exceeded() bool {
	return g.Applied && (g.Overflow || g.Milligrams > MaxMilligrams)
}

// ReadDosage runs the gate's parsing step. Non-digit characters, including
// thousands separators, are dropped: "2,000 mg" reads as 2000.
func ReadDosage(text string) Gate {
	if !strings.Contains(strings.ToLower(text), "mg") {
		return Gate{}
	}

	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return Gate{}
	}

	g := Gate{Applied: true, Digits: b.String()}
	mg, err := strconv.ParseInt(g.Digits, 10, 64)
	if err != nil {
		g.Overflow = true
		return g
	}
	g.Milligrams = mg
	return g
}

// CheckDosage returns an error wrapping domain.ErrDosageTooHigh when the
// gate blocks text, nil otherwise.
func CheckDosage(text string) error {
	g := ReadDosage(text)
	if !g.Exceeded() {
		return nil
	}
	return fmt.Errorf("%w: %s mg exceeds the %d mg limit (e.g. %q)",
		domain.ErrDosageTooHigh, g.Digits, MaxMilligrams, DosageExample)
}
