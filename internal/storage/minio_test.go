package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinIOConfigEnabled(t *testing.T) {
	var nilCfg *MinIOConfig
	require.False(t, nilCfg.Enabled())
	require.False(t, (&MinIOConfig{Bucket: "archive"}).Enabled())
	require.False(t, (&MinIOConfig{Endpoint: "localhost:9000"}).Enabled())
	require.True(t, (&MinIOConfig{Endpoint: "localhost:9000", Bucket: "archive"}).Enabled())
}

func TestNewMinIOStorageRequiresConfig(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), nil)
	require.Error(t, err)

	_, err = NewMinIOStorage(context.Background(), &MinIOConfig{Bucket: "archive"})
	require.Error(t, err)
}
