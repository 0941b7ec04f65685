package cache

import (
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "plain package",
			key:  Key{Name: "react"},
			want: "npm:packument:react",
		},
		{
			name: "scoped package",
			key:  Key{Name: "@types/node"},
			want: "npm:packument:@types/node",
		},
		{
			name: "pinned version",
			key:  Key{Name: "lodash", Version: "4.17.21"},
			want: "npm:packument:lodash@4.17.21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
