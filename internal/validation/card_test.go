package validation

import "testing"

func TestIsValidCardNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "valid visa test number",
			number: "4539578763621486",
			valid:  true,
		},
		{
			name:   "valid mastercard test number",
			number: "5555555555554444",
			valid:  true,
		},
		{
			name:   "invalid checksum",
			number: "4539578763621487",
			valid:  false,
		},
		{
			name:   "too short",
			number: "79927398713",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "4539a78763621486",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCardNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidCardNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestIsValidMCC(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{name: "service station", code: "5541", valid: true},
		{name: "restaurants", code: "5812", valid: true},
		{name: "too short", code: "581", valid: false},
		{name: "too long", code: "58122", valid: false},
		{name: "letters", code: "58a2", valid: false},
		{name: "empty", code: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidMCC(tt.code)
			if got != tt.valid {
				t.Fatalf("IsValidMCC(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}
