package withdrawal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

func TestValidateIBAN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "turkey", in: "TR33 0006 1005 1978 6457 8413 26"},
		{name: "germany", in: "DE89 3704 0044 0532 0130 00"},
		{name: "uk lower case", in: "gb82 west 1234 5698 7654 32"},
		{name: "netherlands", in: "NL91ABNA0417164300"},
		{name: "bad checksum", in: "TR33 0006 1005 1978 6457 8413 27", wantErr: true},
		{name: "wrong country length", in: "TR33 0006 1005 1978 6457 8413", wantErr: true},
		{name: "too short", in: "DE89", wantErr: true},
		{name: "digit country", in: "1289370400440532013000", wantErr: true},
		{name: "letter check digits", in: "DEAB370400440532013000", wantErr: true},
		{name: "punctuation", in: "DE89-3704-0044-0532-0130-00", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIBAN(NormalizeIBAN(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidIBAN)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestMaskIBAN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TR********************1326", maskIBAN("TR330006100519786457841326"))
	assert.Equal(t, "DE89", maskIBAN("DE89"))
}
