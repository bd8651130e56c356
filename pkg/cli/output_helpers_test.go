package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{name: "empty ok", output: "", wantErr: false},
		{name: "table ok", output: "table", wantErr: false},
		{name: "json ok", output: "json", wantErr: false},
		{name: "yaml rejected", output: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOutputFormat(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	require.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, printJSON(&buf, nil))
	require.Equal(t, "null\n", buf.String())
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, []string{"ID", "NAME"}, [][]string{{"1", "Frontier Cluster"}, {"12", "Edge"}}))
	require.Equal(t, "ID  NAME\n1   Frontier Cluster\n12  Edge\n", buf.String())
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 3, want: "3"},
		{in: 2.5, want: "2.5"},
		{in: 18.333333, want: "18.3333"},
		{in: 0, want: "0"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatFloat(tt.in))
	}
}
