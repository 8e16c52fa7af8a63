package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/insightly/internal/flagx"
	"github.com/dmitrijs2005/insightly/internal/timex"
)

// JsonConfig is the intermediate DTO for JSON configuration files. Duration
// fields accept both "30s"-style strings and integer nanoseconds via
// timex.Duration; after unmarshalling, values are copied into the runtime
// Config.
type JsonConfig struct {
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	DatabaseDSN      string         `json:"database_dsn"`
	S3User           string         `json:"s3_user"`
	S3Password       string         `json:"s3_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	SMTPHost         string         `json:"smtp_host"`
	SMTPPort         int            `json:"smtp_port"`
	SMTPUser         string         `json:"smtp_user"`
	SMTPPassword     string         `json:"smtp_password"`
	SMTPFrom         string         `json:"smtp_from"`
	CronSpec         string         `json:"cron_spec"`
	Timezone         string         `json:"timezone"`
	Workers          int            `json:"workers"`
	OpTimeout        timex.Duration `json:"op_timeout"`
	WindowLength     timex.Duration `json:"window_length"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flags, if any. Missing flag means no JSON overlay. An unreadable
// or invalid file panics: a config file that exists but cannot be used is a
// deployment error, not a runtime condition.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.S3User != "" {
		config.S3User = c.S3User
	}
	if c.S3Password != "" {
		config.S3Password = c.S3Password
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.SMTPHost != "" {
		config.SMTPHost = c.SMTPHost
	}
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	if c.SMTPUser != "" {
		config.SMTPUser = c.SMTPUser
	}
	if c.SMTPPassword != "" {
		config.SMTPPassword = c.SMTPPassword
	}
	if c.SMTPFrom != "" {
		config.SMTPFrom = c.SMTPFrom
	}
	if c.CronSpec != "" {
		config.CronSpec = c.CronSpec
	}
	if c.Timezone != "" {
		config.Timezone = c.Timezone
	}
	if c.Workers != 0 {
		config.Workers = c.Workers
	}
	if c.OpTimeout.Duration != 0 {
		config.OpTimeout = time.Duration(c.OpTimeout.Duration)
	}
	if c.WindowLength.Duration != 0 {
		config.WindowLength = time.Duration(c.WindowLength.Duration)
	}
}
