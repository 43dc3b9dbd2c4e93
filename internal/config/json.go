package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/dmitrijs2005/gophchat/internal/timex"
)

// JsonConfig is the on-disk shape. Pointer and zero-value fields are skipped
// when overlaying so a partial file keeps the defaults.
type JsonConfig struct {
	Backend            string         `json:"backend"`
	LocalDBPath        string         `json:"local_db_path"`
	DatabaseDSN        string         `json:"database_dsn"`
	S3User             string         `json:"s3_user"`
	S3Password         string         `json:"s3_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	MaxFileBytes       int64          `json:"max_file_bytes"`
	MaxTotalBytes      int64          `json:"max_total_bytes"`
	SyncPollInterval   timex.Duration `json:"sync_poll_interval"`
	BlobCacheSize      int            `json:"blob_cache_size"`
	LogLevel           string         `json:"log_level"`
	MinPasswordEntropy *float64       `json:"min_password_entropy"`
}

// parseJson overlays cfg with the file named by -c/-config or GOPHCHAT_CONFIG.
// It panics on read or decode errors.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.LocalDBPath, jc.LocalDBPath)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.S3User, jc.S3User)
	setString(&cfg.S3Password, jc.S3Password)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.MaxFileBytes != 0 {
		cfg.MaxFileBytes = jc.MaxFileBytes
	}
	if jc.MaxTotalBytes != 0 {
		cfg.MaxTotalBytes = jc.MaxTotalBytes
	}
	if jc.SyncPollInterval.Duration != 0 {
		cfg.SyncPollInterval = jc.SyncPollInterval.Duration
	}
	if jc.BlobCacheSize != 0 {
		cfg.BlobCacheSize = jc.BlobCacheSize
	}
	if jc.MinPasswordEntropy != nil {
		cfg.MinPasswordEntropy = *jc.MinPasswordEntropy
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
