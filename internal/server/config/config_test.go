package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.Equal(t, ":8080", cfg.EndpointAddrHTTP)
	require.Equal(t, "0 8 * * 1", cfg.CronSpec)
	require.Equal(t, "UTC", cfg.Timezone)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 30*time.Second, cfg.OpTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.WindowLength)
	require.False(t, cfg.MailConfigured(), "no SMTP host by default")
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("REPORT_WORKERS", "8")
	t.Setenv("REPORT_OP_TIMEOUT", "15s")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	require.Equal(t, ":9090", cfg.EndpointAddrHTTP)
	require.Equal(t, "smtp.example.com", cfg.SMTPHost)
	require.True(t, cfg.MailConfigured())
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 15*time.Second, cfg.OpTimeout)
}

func TestParseEnv_BadValuesKeepFallback(t *testing.T) {
	t.Setenv("REPORT_WORKERS", "many")
	t.Setenv("REPORT_OP_TIMEOUT", "soon")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 30*time.Second, cfg.OpTimeout)
}
