package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoster = `
pod:
  - id: LU0000010637000000000000070232023
    address: Solar Installation 1
    price_per_kWh: 0.12
    peak_power: 10.5
    Latitude: 49.81
    Longitude: 6.33
  - id: LU0000010637000000000000070232024
    peak_power: 4
obis_codes:
  - "1-1:2.29.0"
email:
  recipient_email: ops@example.com
`

func TestParseRoster(t *testing.T) {
	roster, err := ParseRoster([]byte(sampleRoster))
	require.NoError(t, err)

	require.Len(t, roster.Pods, 2)
	first := roster.Pods[0]
	assert.Equal(t, "Solar Installation 1", first.Name())
	assert.Equal(t, 0.12, first.PricePerKWh)
	assert.Equal(t, 10.5, first.PeakPowerKW)
	assert.True(t, first.HasLocation())
	assert.InDelta(t, 49.81, *first.Latitude, 1e-9)

	second := roster.Pods[1]
	assert.Equal(t, second.ID, second.Name(), "name falls back to the POD code")
	assert.False(t, second.HasLocation())

	assert.Equal(t, []string{"1-1:2.29.0"}, roster.OBISCodes)
	assert.Equal(t, []string{"ops@example.com"}, roster.RecipientsOr(nil))
}

func TestRecipientShapes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "single string",
			yaml: `recipient_email: a@example.com`,
			want: []string{"a@example.com"},
		},
		{
			name: "list of strings",
			yaml: "recipient_email:\n  - a@example.com\n  - b@example.com",
			want: []string{"a@example.com", "b@example.com"},
		},
		{
			name: "list of objects",
			yaml: "recipient_email:\n  - mail: a@example.com\n  - mail: b@example.com",
			want: []string{"a@example.com", "b@example.com"},
		},
		{
			name: "mixed with duplicates",
			yaml: "recipient_email:\n  - a@example.com\n  - mail: A@example.com\n  - c@example.com",
			want: []string{"a@example.com", "c@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "pod:\n  - id: P1\nobis_codes: [X]\nemail:\n  " + indent(tt.yaml)
			roster, err := ParseRoster([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, []string(roster.Email.Recipients))
		})
	}
}

func indent(s string) string {
	out := ""
	for i, r := range s {
		out += string(r)
		if r == '\n' && i < len(s)-1 {
			out += "  "
		}
	}
	return out
}

func TestRecipientsFallback(t *testing.T) {
	roster := &Roster{}
	assert.Equal(t, []string{"x@example.com"}, roster.RecipientsOr([]string{" x@example.com ", ""}))
}

func TestParseRoster_Invalid(t *testing.T) {
	cases := map[string]string{
		"no pods":      "obis_codes: [X]",
		"no obis":      "pod:\n  - id: P1",
		"missing id":   "pod:\n  - address: nowhere\nobis_codes: [X]",
		"duplicate id": "pod:\n  - id: P1\n  - id: P1\nobis_codes: [X]",
		"bad mail":     "pod:\n  - id: P1\nobis_codes: [X]\nemail:\n  recipient_email:\n    - name: x",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRoster([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pods.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoster), 0o644))

	roster, err := LoadRoster(path)
	require.NoError(t, err)
	assert.Len(t, roster.Pods, 2)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
