package numberx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestGetIntNumber(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{float64(3), 3, true},
		{int32(7), 7, true},
		{"12", 12, true},
		{" 4.9 ", 4, true},
		{"-2", -2, true},
		{"abc", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, c := range cases {
		got, ok := GetIntNumber(c.in)
		assert.Equal(t, c.ok, ok, "%#v", c.in)
		assert.Equal(t, c.want, got, "%#v", c.in)
	}
}

func TestGetBool(t *testing.T) {
	v, ok := GetBool("TRUE")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = GetBool(float64(0))
	assert.True(t, ok)
	assert.False(t, v)

	v, ok = GetBool(2)
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = GetBool("maybe")
	assert.False(t, ok)

	_, ok = GetBool(map[string]interface{}{})
	assert.False(t, ok)
}

func TestNumberText(t *testing.T) {
	cases := map[string]string{
		"9007199254740993": "9007199254740993",
		"-12":              "-12",
		"1e3":              "1000",
		"1.50":             "1.5",
		"2.5E-1":           "0.25",
		" 42 ":             "42",
	}
	for in, want := range cases {
		assert.Equal(t, want, NumberText(in), in)
	}
}

func TestScalarString(t *testing.T) {
	r := gjson.Parse(`{"a":"D1","b":9007199254740993,"c":1e3,"d":true,"e":null}`)
	assert.Equal(t, "D1", ScalarString(r.Get("a")))
	assert.Equal(t, "9007199254740993", ScalarString(r.Get("b")))
	assert.Equal(t, "1000", ScalarString(r.Get("c")))
	assert.Equal(t, "", ScalarString(r.Get("d")))
	assert.Equal(t, "", ScalarString(r.Get("e")))
	assert.Equal(t, "", ScalarString(r.Get("missing")))
}
