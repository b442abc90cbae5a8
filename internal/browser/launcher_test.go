package browser

import (
	"slices"
	"testing"

	"github.com/pagecap/pagecap/internal/config"
)

func TestArgsForCapture(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Capture
		want []string
	}{
		{
			name: "defaults add nothing",
			cfg:  config.Capture{},
			want: nil,
		},
		{
			name: "images off",
			cfg:  config.Capture{AutoLoadImages: config.ToggleOff},
			want: []string{"--blink-settings=imagesEnabled=false"},
		},
		{
			name: "popups off",
			cfg:  config.Capture{JSCanOpenWindows: config.ToggleOff},
			want: []string{"--block-new-web-contents"},
		},
		{
			name: "insecure",
			cfg:  config.Capture{Insecure: true},
			want: []string{"--ignore-certificate-errors"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ArgsForCapture(&tt.cfg)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ArgsForCapture() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCDPURL(t *testing.T) {
	l := NewLauncher(LaunchConfig{CDPAddress: "127.0.0.1", CDPPort: 9222})
	if got := l.CDPURL(); got != "http://127.0.0.1:9222" {
		t.Errorf("CDPURL() = %q", got)
	}
}
