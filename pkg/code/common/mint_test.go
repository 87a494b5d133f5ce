package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestStrToQuarks_HappyPath(t *testing.T) {
	for _, tc := range []struct {
		input    string
		decimals int
		expected uint64
	}{
		{"123.456", 6, 123456000},
		{"123", 6, 123000000},
		{"0.456", 6, 456000},
		{"1234567890123.123456", 6, 1234567890123123456},
		{"10", DefaultMintDecimals, 10_000_000_000},
		{"5.5", DefaultMintDecimals, 5_500_000_000},
		{"42", 0, 42},
	} {
		quarks, err := StrToQuarks(tc.input, tc.decimals)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, quarks)
	}
}

func TestStrToQuarks_InvalidString(t *testing.T) {
	for _, tc := range []string{
		"",
		"abc",
		"1.1.1",
		"0.1234567",
		"12345678901234",
		"-1",
	} {
		_, err := StrToQuarks(tc, 6)
		assert.Error(t, err)
	}
}

func TestQuarksConversion(t *testing.T) {
	assert.EqualValues(t, 1_000_000_000, QuarksPerUnit(DefaultMintDecimals))
	assert.EqualValues(t, 10_000_000_000, ToQuarks(10, DefaultMintDecimals))
	assert.EqualValues(t, 10, FromQuarks(10_500_000_000, DefaultMintDecimals))

	assert.Equal(t, "10", QuarksToStr(10_000_000_000, DefaultMintDecimals))
	assert.Equal(t, "10.5", QuarksToStr(10_500_000_000, DefaultMintDecimals))
	assert.Equal(t, "0.000000001", QuarksToStr(1, DefaultMintDecimals))
	assert.Equal(t, "7", QuarksToStr(7, 0))
}

func TestFormatQuarks(t *testing.T) {
	for _, tc := range []struct {
		locale   language.Tag
		quarks   uint64
		decimals int
		expected string
	}{
		{language.English, 0, 9, "0"},
		{language.English, 5_000_000_000, 9, "5"},
		{language.English, 1_234_500_000_000, 9, "1,234.5"},
		{language.English, 1_000_000_001, 9, "1.000000001"},
		{language.English, 1_234_567, 0, "1,234,567"},
		{language.German, 1_234_500_000_000, 9, "1.234,5"},
		{language.German, 250_000_000, 9, "0,25"},
	} {
		assert.Equal(t, tc.expected, FormatQuarks(tc.locale, tc.quarks, tc.decimals), "%s %d", tc.locale, tc.quarks)
	}

	// Amounts past float64 precision keep every digit
	assert.Equal(t, "18,446,744,073.709551615", FormatQuarks(language.English, 18_446_744_073_709_551_615, 9))
}
