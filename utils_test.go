package wyvern

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 0, "1"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"10000", 18, "10000000000000000000000"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.amount, tt.decimals)
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got.String(), tt.amount)
	}

	for _, bad := range []struct {
		amount   string
		decimals int
	}{
		{"0", 6},
		{"-1", 6},
		{"abc", 6},
		{"1.0000001", 6},
		{"1", 19},
	} {
		_, err := ParseAmount(bad.amount, bad.decimals)
		var invalid *InvalidParamError
		assert.ErrorAs(t, err, &invalid, bad.amount)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1500000), 6))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}

func TestParseInteger(t *testing.T) {
	v, err := ParseInteger("0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())

	v, err = ParseInteger("83974")
	require.NoError(t, err)
	assert.Equal(t, int64(83974), v.Int64())

	_, err = ParseInteger("-1")
	assert.Error(t, err)
	_, err = ParseInteger("0x1" + strings.Repeat("0", 64))
	assert.Error(t, err)
}
