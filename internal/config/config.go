package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// Defaults holds environment-derived defaults shared by the CLI and the
// daemon. CLI flags override these per run.
type Defaults struct {
	// Browser settings
	BrowserPath string // explicit chromium binary; empty = auto-detect
	CDPAddress  string
	CDPPort     int // >0 attaches to an already-running browser
	ProfileDir  string

	// Capture defaults
	MinWidth  int64
	MinHeight int64
	MaxWaitMS int

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads defaults from environment variables and an optional .env file.
func Load() (*Defaults, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Defaults{
		BrowserPath: getEnvOrDefault("PAGECAP_BROWSER_PATH", ""),
		CDPAddress:  getEnvOrDefault("PAGECAP_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:     getEnvIntOrDefault("PAGECAP_CDP_PORT", 0),
		ProfileDir:  getEnvOrDefault("PAGECAP_PROFILE_DIR", ""),
		MinWidth:    int64(getEnvIntOrDefault("PAGECAP_MIN_WIDTH", 800)),
		MinHeight:   int64(getEnvIntOrDefault("PAGECAP_MIN_HEIGHT", 600)),
		MaxWaitMS:   getEnvIntOrDefault("PAGECAP_MAX_WAIT_MS", 90000),
		LogLevel:    getEnvOrDefault("PAGECAP_LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("PAGECAP_LOG_FILE", "logs/pagecapd.log"),
	}

	return cfg, nil
}

// Toggle is a tri-state feature switch parsed from on|off flag values. The
// zero value leaves the engine default untouched.
type Toggle int

const (
	ToggleDefault Toggle = iota
	ToggleOn
	ToggleOff
)

// ParseToggle maps "on"/"off" to the corresponding state; anything else
// leaves the default.
func ParseToggle(v string) Toggle {
	switch v {
	case "on":
		return ToggleOn
	case "off":
		return ToggleOff
	}
	return ToggleDefault
}

// Capture is the immutable per-run configuration. It is constructed once
// from flags (CLI) or a request body (daemon) and never mutated afterwards.
type Capture struct {
	URL        string
	OutputPath string
	Format     format.Format

	Delay   time.Duration
	MaxWait time.Duration // 0 = unbounded

	MinWidth  int64
	MinHeight int64

	Headers    map[string]string
	Body       []byte // non-nil switches the navigation to a POST
	UserAgent  string
	ZoomFactor float64

	JavaScript           Toggle
	AutoLoadImages       Toggle
	Plugins              Toggle
	JSCanOpenWindows     Toggle
	JSCanAccessClipboard Toggle
	PrintBackgrounds     Toggle

	Smooth   bool
	Insecure bool
	Silent   bool

	InjectScript string // JS source injected at document start
	ScriptObject string // window[<name>] bridge object
	ExpectAlert  string
	PrintAlerts  bool
}

// MinSize returns the configured minimum viewport size.
func (c *Capture) MinSize() orchestrate.ViewSize {
	return orchestrate.ViewSize{Width: c.MinWidth, Height: c.MinHeight}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
