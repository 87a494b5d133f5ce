package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultMintDecimals is the number of decimals assumed for staking and reward
// mints when none is configured.
const DefaultMintDecimals = 9

// QuarksPerUnit returns the number of base units in one whole token.
func QuarksPerUnit(decimals int) uint64 {
	return uint64(math.Pow10(decimals))
}

func FromQuarks(quarks uint64, decimals int) uint64 {
	return quarks / QuarksPerUnit(decimals)
}

func ToQuarks(units uint64, decimals int) uint64 {
	return units * QuarksPerUnit(decimals)
}

// StrToQuarks parses a decimal token amount, such as "12.5", into base units.
func StrToQuarks(val string, decimals int) (uint64, error) {
	parts := strings.Split(val, ".")
	if len(parts) > 2 {
		return 0, errors.New("invalid value")
	}

	if len(parts[0]) > 19-decimals {
		return 0, errors.New("value cannot be represented")
	}

	wholeUnits, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}

	var quarks uint64
	if len(parts) == 2 {
		if len(parts[1]) > decimals {
			return 0, errors.New("value cannot be represented")
		}

		padded := fmt.Sprintf("%s%s", parts[1], strings.Repeat("0", decimals-len(parts[1])))
		quarks, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "invalid decimal component")
		}
	}

	return wholeUnits*QuarksPerUnit(decimals) + quarks, nil
}

// QuarksToStr formats base units as a decimal token amount.
func QuarksToStr(quarks uint64, decimals int) string {
	whole := FromQuarks(quarks, decimals)
	if decimals == 0 {
		return strconv.FormatUint(whole, 10)
	}

	fractional := quarks % QuarksPerUnit(decimals)
	if fractional == 0 {
		return strconv.FormatUint(whole, 10)
	}

	padded := fmt.Sprintf("%0*d", decimals, fractional)
	return fmt.Sprintf("%d.%s", whole, strings.TrimRight(padded, "0"))
}

// FormatQuarks formats base units as a token amount using the locale's digit
// grouping and decimal separator. Fractional digits are never rounded.
func FormatQuarks(locale language.Tag, quarks uint64, decimals int) string {
	printer := message.NewPrinter(locale)

	whole := printer.Sprint(number.Decimal(FromQuarks(quarks, decimals)))
	if decimals == 0 {
		return whole
	}

	fractional := quarks % QuarksPerUnit(decimals)
	if fractional == 0 {
		return whole
	}

	padded := strings.TrimRight(fmt.Sprintf("%0*d", decimals, fractional), "0")
	return whole + decimalSeparator(printer) + padded
}

func decimalSeparator(printer *message.Printer) string {
	return strings.TrimFunc(printer.Sprint(number.Decimal(1.5, number.Scale(1))), unicode.IsDigit)
}
