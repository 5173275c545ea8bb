package storage

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether an endpoint and bucket are set.
func (c *MinIOConfig) Enabled() bool {
	return c != nil && c.Endpoint != "" && c.Bucket != ""
}
