package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole amount", input: "100", want: "100.00"},
		{name: "two decimals", input: "123.45", want: "123.45"},
		{name: "one decimal", input: "99.5", want: "99.50"},
		{name: "zero", input: "0", want: "0.00"},
		{name: "negative", input: "-10.25", want: "-10.25"},
		{name: "three decimals rejected", input: "1.005", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustNewMoneyFromString("100.00")
	b := MustNewMoneyFromString("5.00")

	assert.Equal(t, "105.00", a.Add(b).String())
	assert.Equal(t, "95.00", a.Sub(b).String())

	// Addition is exact; 0.1+0.2 style drift must not appear.
	c := MustNewMoneyFromString("0.10")
	d := MustNewMoneyFromString("0.20")
	assert.True(t, c.Add(d).Equal(MustNewMoneyFromString("0.30")))
}

func TestMoney_Compare(t *testing.T) {
	low := MustNewMoneyFromString("99.99")
	high := MustNewMoneyFromString("100.00")

	assert.True(t, low.LessThan(high))
	assert.True(t, high.GreaterThanOrEqual(low))
	assert.True(t, high.GreaterThanOrEqual(high))
	assert.Equal(t, -1, low.Cmp(high))
	assert.Equal(t, 0, high.Cmp(high))
	assert.False(t, low.Equal(high))
}

func TestMoney_Cents(t *testing.T) {
	m := NewMoneyFromCents(12345)
	assert.Equal(t, "123.45", m.String())
	assert.Equal(t, int64(12345), m.ToCents())
}

func TestMoney_JSON(t *testing.T) {
	m := MustNewMoneyFromString("250.50")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `"250.50"`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, m.Equal(decoded))

	// Clients that serialize decimals as bare numbers are accepted too.
	var fromNumber Money
	require.NoError(t, json.Unmarshal([]byte(`105.5`), &fromNumber))
	assert.Equal(t, "105.50", fromNumber.String())

	var bad Money
	assert.Error(t, json.Unmarshal([]byte(`"not-money"`), &bad))
}

func TestMoney_ScanValue(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("42.10"))
	assert.Equal(t, "42.10", m.String())

	require.NoError(t, m.Scan([]byte("17.99")))
	assert.Equal(t, "17.99", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "17.99", v)

	assert.Error(t, m.Scan(3.14))
}

func TestMoney_RoundingOnConstruction(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("10.999"))
	assert.Equal(t, "11.00", m.String())
}
