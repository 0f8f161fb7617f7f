package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(42)

	assert.Equal(t, "142", a.Add(b).String())
	assert.Equal(t, "58", a.Sub(b).String())
	// Operands are untouched
	assert.Equal(t, "100", a.String())
	assert.Equal(t, "42", b.String())

	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(NewAmount(100)))
	assert.True(t, NewAmount(0).IsZero())
	assert.Equal(t, -1, NewAmount(-5).Sign())
}

func TestAmountMulDivFloors(t *testing.T) {
	// 10 * 1e7 / 3 = 33333333.33... floors to 33333333
	got := NewAmount(10).MulDiv(NewAmount(PriceScale), NewAmount(3))
	assert.Equal(t, "33333333", got.String())

	// Exact division stays exact
	got = NewAmount(160).MulDiv(NewAmount(PriceScale), NewAmount(100))
	assert.Equal(t, "16000000", got.String())
}

func TestAmountMulDivBeyondInt64(t *testing.T) {
	big, err := ParseAmount("92233720368547758070") // > max int64
	require.NoError(t, err)

	got := big.MulDiv(NewAmount(PriceScale), NewAmount(PriceScale))
	assert.Equal(t, "92233720368547758070", got.String())
}

func TestAmountParse(t *testing.T) {
	a, err := ParseAmount(" 12345 ")
	require.NoError(t, err)
	assert.Equal(t, "12345", a.String())

	_, err = ParseAmount("12.5")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestAmountSQLRoundTrip(t *testing.T) {
	a := NewAmount(987654321)
	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "987654321", v)

	var b Amount
	require.NoError(t, b.Scan("987654321"))
	assert.Equal(t, 0, a.Cmp(b))

	require.NoError(t, b.Scan([]byte("-42")))
	assert.Equal(t, "-42", b.String())

	require.NoError(t, b.Scan(nil))
	assert.True(t, b.IsZero())

	assert.Error(t, b.Scan(3.14))
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := NewAmount(150)
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"150"`, string(raw))

	var b Amount
	require.NoError(t, json.Unmarshal([]byte(`"150"`), &b))
	assert.Equal(t, 0, a.Cmp(b))

	// Bare numbers are accepted too
	require.NoError(t, json.Unmarshal([]byte(`150`), &b))
	assert.Equal(t, "150", b.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &b))
	assert.True(t, b.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"1.5"`), &b))
}
