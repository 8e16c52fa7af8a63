package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/insightly/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-u string   S3 user
//	-p string   S3 password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m string   SMTP host (empty disables delivery)
//	-o int      SMTP port
//	-f string   SMTP from address
//	-s string   batch cron spec (5-field)
//	-z string   batch timezone (IANA name)
//	-w int      worker pool size
//	-t int      per-operation timeout, seconds
//	-l int      aggregation window length, days
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-u", "-p", "-b", "-g", "-e", "-m", "-o", "-f", "-s", "-z", "-w", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	fs.StringVar(&config.S3User, "u", config.S3User, "S3 user")
	fs.StringVar(&config.S3Password, "p", config.S3Password, "S3 password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "SMTP host")
	fs.IntVar(&config.SMTPPort, "o", config.SMTPPort, "SMTP port")
	fs.StringVar(&config.SMTPFrom, "f", config.SMTPFrom, "SMTP from address")

	fs.StringVar(&config.CronSpec, "s", config.CronSpec, "batch cron spec")
	fs.StringVar(&config.Timezone, "z", config.Timezone, "batch timezone")
	fs.IntVar(&config.Workers, "w", config.Workers, "worker pool size")

	opTimeout := fs.Int("t", int(config.OpTimeout.Seconds()), "per-operation timeout (in seconds)")
	windowDays := fs.Int("l", int(config.WindowLength.Hours()/24), "aggregation window length (in days)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.OpTimeout = time.Duration(*opTimeout) * time.Second
	config.WindowLength = time.Duration(*windowDays) * 24 * time.Hour
}
