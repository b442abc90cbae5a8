// pagecap captures the fully-rendered output of a web page to a file.
//
// Usage:
//
//	pagecap --url=http://www.example.org/ --out=page.png
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pagecap/pagecap/internal/browser"
	"github.com/pagecap/pagecap/internal/capture"
	"github.com/pagecap/pagecap/internal/config"
	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/netutil"
)

// headerList collects repeatable --header=name:value flags.
type headerList map[string]string

func (h headerList) String() string {
	parts := make([]string, 0, len(h))
	for k, v := range h {
		parts = append(parts, k+":"+v)
	}
	return strings.Join(parts, ", ")
}

func (h headerList) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("header must be name:value, got %q", v)
	}
	h[strings.TrimSpace(name)] = strings.TrimSpace(value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	defaults, err := config.Load()
	if err != nil {
		slog.Error("failed to load defaults", "error", err)
		return 1
	}

	fs := flag.NewFlagSet("pagecap", flag.ContinueOnError)
	var (
		url       = fs.String("url", "", "The URL to capture (http:...|file:...|...)")
		out       = fs.String("out", "", "The target file (.png|.pdf|.svg|.jpeg|...)")
		outFormat = fs.String("out-format", "", "Format identifier, overrides the --out extension heuristic (svg,pdf,ps,itext,html,png,jpeg,webp,gif,bmp,tiff)")
		minWidth  = fs.Int64("min-width", defaults.MinWidth, "Minimal width for the image")
		minHeight = fs.Int64("min-height", defaults.MinHeight, "Minimal height for the image")
		maxWait   = fs.Int("max-wait", defaults.MaxWaitMS, "Don't wait more than this many milliseconds (0 = no limit)")
		delay     = fs.Int("delay", 0, "After successful load, wait this many milliseconds")

		bodyString = fs.String("body-string", "", "Unencoded request body (switches to POST)")
		bodyBase64 = fs.String("body-base64", "", "Base64-encoded request body (switches to POST)")
		userAgent  = fs.String("user-agent", "", "Override the User-Agent header")

		javascript       = fs.String("javascript", "", "JavaScript execution (on|off)")
		autoLoadImages   = fs.String("auto-load-images", "", "Automatic image loading (on|off)")
		plugins          = fs.String("plugins", "", "Plugin execution (on|off)")
		jsOpenWindows    = fs.String("js-can-open-windows", "", "Script can open windows (on|off)")
		jsClipboard      = fs.String("js-can-access-clipboard", "", "Script clipboard privileges (on|off)")
		printBackgrounds = fs.String("print-backgrounds", "", "Backgrounds in PDF output (on|off)")
		zoomFactor       = fs.Float64("zoom-factor", 0, "Page zoom factor")

		smooth   = fs.Bool("smooth", false, "Enable higher-quality scaling for raster fallback output")
		insecure = fs.Bool("insecure", false, "Ignore SSL/TLS certificate errors")
		silent   = fs.Bool("silent", false, "Less console output")

		injectScript = fs.String("inject-script", "", "Path to JavaScript injected at document start")
		scriptObject = fs.String("script-object", "", "window[<name>] becomes the script bridge object")
		expectAlert  = fs.String("expect-alert", "", "Capture when alert(<string>) occurs")
		printAlerts  = fs.Bool("debug-print-alerts", false, "Print JS alert(...) strings")

		browserPath = fs.String("browser", defaults.BrowserPath, "Chromium binary to launch (default: auto-detect)")
	)
	headers := headerList{}
	fs.Var(headers, "header", "Request header as name:value; repeatable")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}

	setupLogger(*silent, defaults.LogLevel)

	if *url == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "pagecap: --url and --out are required")
		fs.Usage()
		return 1
	}

	f := format.FromPath(*out)
	if *outFormat != "" {
		f = format.FromIdentifier(*outFormat)
		if f == format.Unresolved {
			fmt.Fprintf(os.Stderr, "pagecap: unknown output format %q\n", *outFormat)
			fs.Usage()
			return 1
		}
	}
	if f == format.Unresolved {
		fmt.Fprintf(os.Stderr, "pagecap: cannot determine output format from %q; use --out-format\n", *out)
		fs.Usage()
		return 1
	}

	var body []byte
	switch {
	case *bodyBase64 != "":
		body, err = base64.StdEncoding.DecodeString(*bodyBase64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pagecap: invalid --body-base64: %v\n", err)
			return 1
		}
	case *bodyString != "":
		body = []byte(*bodyString)
	}

	var injectSource string
	if *injectScript != "" {
		src, err := os.ReadFile(*injectScript)
		if err != nil {
			slog.Warn("inject script unreadable, continuing without it", "path", *injectScript, "error", err)
		} else {
			injectSource = string(src)
		}
	}

	cfg := &config.Capture{
		URL:                  *url,
		OutputPath:           *out,
		Format:               f,
		Delay:                time.Duration(*delay) * time.Millisecond,
		MaxWait:              time.Duration(*maxWait) * time.Millisecond,
		MinWidth:             *minWidth,
		MinHeight:            *minHeight,
		Headers:              headers,
		Body:                 body,
		UserAgent:            *userAgent,
		ZoomFactor:           *zoomFactor,
		JavaScript:           config.ParseToggle(*javascript),
		AutoLoadImages:       config.ParseToggle(*autoLoadImages),
		Plugins:              config.ParseToggle(*plugins),
		JSCanOpenWindows:     config.ParseToggle(*jsOpenWindows),
		JSCanAccessClipboard: config.ParseToggle(*jsClipboard),
		PrintBackgrounds:     config.ParseToggle(*printBackgrounds),
		Smooth:               *smooth,
		Insecure:             *insecure,
		Silent:               *silent,
		InjectScript:         injectSource,
		ScriptObject:         *scriptObject,
		ExpectAlert:          *expectAlert,
		PrintAlerts:          *printAlerts,
	}

	ctx := context.Background()

	cdpURL := fmt.Sprintf("http://%s:%d", defaults.CDPAddress, defaults.CDPPort)
	if defaults.CDPPort == 0 {
		port, err := netutil.FreePort(defaults.CDPAddress)
		if err != nil {
			slog.Error("no free devtools port", "error", err)
			return 1
		}
		launcher := browser.NewLauncher(browser.LaunchConfig{
			BrowserPath: *browserPath,
			CDPAddress:  defaults.CDPAddress,
			CDPPort:     port,
			ProfileDir:  defaults.ProfileDir,
			WindowSize:  fmt.Sprintf("%d,%d", *minWidth, *minHeight),
			ExtraArgs:   browser.ArgsForCapture(cfg),
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			return 1
		}
		defer launcher.Stop()
		cdpURL = launcher.CDPURL()
	}

	allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer cancel()

	runner := capture.NewRunner(allocCtx)
	if _, err := runner.Execute(ctx, cfg, nil); err != nil {
		if !cfg.Silent {
			slog.Error("capture failed", "url", cfg.URL, "out", cfg.OutputPath, "error", err)
		}
		return 1
	}
	return 0
}

func setupLogger(silent bool, level string) {
	slogLevel := slog.LevelInfo
	if level == "debug" {
		slogLevel = slog.LevelDebug
	}
	if silent {
		slogLevel = slog.LevelError
	}
	var w io.Writer = os.Stderr
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
}
