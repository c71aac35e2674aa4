package envcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"", false, false},
		{"1", false, true},
		{"true", false, true},
		{"ON", false, true},
		{"yes", false, true},
		{"0", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
	}

	for _, tt := range tests {
		t.Setenv("WINREC_TEST_BOOL", tt.value)
		assert.Equal(t, tt.want, Bool("WINREC_TEST_BOOL", tt.defaultValue), "value=%q default=%v", tt.value, tt.defaultValue)
	}
}

func TestIntClamped(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 60},
		{"30", 30},
		{"0", 1},
		{"-5", 1},
		{"999", 120},
		{"not-a-number", 60},
	}

	for _, tt := range tests {
		t.Setenv("WINREC_TEST_INT", tt.value)
		assert.Equal(t, tt.want, IntClamped("WINREC_TEST_INT", 60, 1, 120), "value=%q", tt.value)
	}
}

func TestStringDefault(t *testing.T) {
	t.Setenv("WINREC_TEST_STR", "  ")
	assert.Equal(t, "fallback", String("WINREC_TEST_STR", "fallback"))

	t.Setenv("WINREC_TEST_STR", "custom")
	assert.Equal(t, "custom", String("WINREC_TEST_STR", "fallback"))
}
