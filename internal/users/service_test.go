package users

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid name",
			input:   "alice",
			wantErr: false,
		},
		{
			name:    "minimum length",
			input:   "abc",
			wantErr: false,
		},
		{
			name:    "maximum length",
			input:   strings.Repeat("a", 50),
			wantErr: false,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "too short",
			input:   "ab",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   strings.Repeat("a", 51),
			wantErr: true,
		},
		{
			name:    "multibyte name counted in characters not bytes",
			input:   strings.Repeat("é", 50), // 100 bytes, 50 characters
			wantErr: false,
		},
		{
			name:    "multibyte name over the character bound",
			input:   strings.Repeat("é", 51),
			wantErr: true,
		},
		{
			name:    "multibyte name under the character bound",
			input:   "éé", // 4 bytes, 2 characters
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
