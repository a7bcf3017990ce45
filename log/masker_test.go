/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMasker_DefaultMasks(t *testing.T) {
	masker := NewMasker(DefaultMasks)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "authorization header",
			in:   "GET /rest/v1/users HTTP/1.1\r\nAuthorization: Bearer eyJhbGciOi\r\nAccept: application/json\r\n",
			want: "GET /rest/v1/users HTTP/1.1\r\nAuthorization: ***\r\nAccept: application/json\r\n",
		},
		{
			name: "api key in url",
			in:   `Get "https://portal.example.com/rest/v1/users?apikey=s3cr3t&limit=5": dial tcp: i/o timeout`,
			want: `Get "https://portal.example.com/rest/v1/users?apikey=***&limit=5": dial tcp: i/o timeout`,
		},
		{
			name: "api key in upper case",
			in:   "APIKEY=s3cr3t",
			want: "apikey=***",
		},
		{
			name: "password in json",
			in:   `{"username":"agent1","password":"p@ss\"word"}`,
			want: `{"username":"agent1","password": "***"}`,
		},
		{
			name: "requester phone keeps last digits",
			in:   `{"id":"42","requester_phone":"+250788123456","status":"new"}`,
			want: `{"id":"42","requester_phone": "***456","status":"new"}`,
		},
		{
			name: "nothing to mask",
			in:   `{"id":"42","status":"in_progress"}`,
			want: `{"id":"42","status":"in_progress"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

func TestMasker_CustomRules(t *testing.T) {
	masker := NewMasker([]MaskingRuleConfig{
		{Field: "pin", Masks: []MaskConfig{{RegExp: `pin:\d+`, Mask: "pin:****"}}},
		{Field: "pin", Formats: []FieldMaskFormat{FieldMaskFormatURLEncoded}},
		{Field: "national_id", Formats: []FieldMaskFormat{FieldMaskFormatJSON}},
	})
	require.Len(t, masker.FieldMasks, 3)

	require.Equal(t, "sim swap pin:**** requested, pin=***",
		masker.Mask("sim swap pin:1234 requested, pin=1234"))
	require.Equal(t, `{"national_id": "***"}`, masker.Mask(`{"national_id":"1199880012345678"}`))
	require.Equal(t, "no secrets here", masker.Mask("no secrets here"))

	require.Equal(t, "apikey=abc", NewMasker(nil).Mask("apikey=abc"))
}
