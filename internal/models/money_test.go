package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "10", want: 1000},
		{in: "10.5", want: 1050},
		{in: "10.15", want: 1015},
		{in: " 0.01 ", want: 1},
		{in: "1.500", want: 150},
		{in: "1.505", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-5.00", wantErr: true},
		{in: "", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "1e2", want: 10000},
		{in: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "10.15", FormatAmount(1015))
	assert.Equal(t, "40.00", FormatAmount(4000))
	assert.Equal(t, "-1.05", FormatAmount(-105))
}
