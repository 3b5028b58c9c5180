package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{addr: ":8080", want: 8080},
		{addr: "0.0.0.0:9090", want: 9090},
		{addr: "8081", want: 8081},
		{addr: "localhost", wantErr: true},
		{addr: ":0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := parsePort(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewConsulClient(t *testing.T) {
	client, err := NewConsulClient("127.0.0.1:8500")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
