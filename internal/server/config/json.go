package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/dmitrijs2005/notesync/internal/timex"
)

// JsonConfig is the JSON shape of the server configuration file. Durations
// accept either "1m" style strings or integer nanoseconds; absent keys keep
// the value already in Config.
type JsonConfig struct {
	HTTPAddr                     *string         `json:"http_addr"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	S3AccessKey                  *string         `json:"s3_access_key"`
	S3SecretKey                  *string         `json:"s3_secret_key"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	PullLimit                    *int            `json:"pull_limit"`
	MaxDevicesPerUser            *int            `json:"max_devices_per_user"`
	KeepAliveInterval            *timex.Duration `json:"keep_alive_interval"`
	DefaultStorageLimit          *int64          `json:"default_storage_limit"`
	LogLevel                     *string         `json:"log_level"`
	LogFile                      *string         `json:"log_file"`
}

// parseJson loads the file named by -c or -config into cfg. Nothing happens
// when neither flag is present; unreadable or malformed files panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIf(&cfg.HTTPAddr, jc.HTTPAddr)
	setIf(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setIf(&cfg.SecretKey, jc.SecretKey)
	setDuration(&cfg.AccessTokenValidityDuration, jc.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, jc.RefreshTokenValidityDuration)
	setIf(&cfg.S3AccessKey, jc.S3AccessKey)
	setIf(&cfg.S3SecretKey, jc.S3SecretKey)
	setIf(&cfg.S3Bucket, jc.S3Bucket)
	setIf(&cfg.S3Region, jc.S3Region)
	setIf(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setIf(&cfg.PullLimit, jc.PullLimit)
	setIf(&cfg.MaxDevicesPerUser, jc.MaxDevicesPerUser)
	setDuration(&cfg.KeepAliveInterval, jc.KeepAliveInterval)
	setIf(&cfg.DefaultStorageLimit, jc.DefaultStorageLimit)
	setIf(&cfg.LogLevel, jc.LogLevel)
	setIf(&cfg.LogFile, jc.LogFile)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = time.Duration(v.Duration)
	}
}
