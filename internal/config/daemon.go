package config

import (
	"strconv"
	"strings"
)

// Daemon holds configuration for the capture daemon's HTTP API.
type Daemon struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	StoreDir         string
	LogLevel         string
	LogFile          string
}

// LoadDaemon reads daemon configuration from environment variables.
func LoadDaemon() (*Daemon, error) {
	cfg := &Daemon{
		BindAddr:         getEnvOrDefault("PAGECAPD_BIND_ADDR", "127.0.0.1:8377"),
		PortAutoFallback: getEnvBoolOrDefault("PAGECAPD_PORT_AUTO_FALLBACK", true),
		StoreDir:         getEnvOrDefault("PAGECAPD_STORE_DIR", "./captures"),
		LogLevel:         strings.ToLower(getEnvOrDefault("PAGECAP_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("PAGECAP_LOG_FILE", "logs/pagecapd.log"),
	}

	host := "127.0.0.1"
	if i := strings.LastIndex(cfg.BindAddr, ":"); i > 0 {
		host = cfg.BindAddr[:i]
	}
	for port := 8377; port < 8382; port++ {
		cfg.PortCandidates = append(cfg.PortCandidates, host+":"+strconv.Itoa(port))
	}

	return cfg, nil
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := getEnvOrDefault(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
