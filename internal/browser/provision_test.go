package browser

import (
	"errors"
	"os"
	"testing"

	"github.com/Iron-Ham/pollrunner/internal/config"
	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
)

// fakeProvisioner builds a Provisioner whose lookups are all controlled by the test.
func fakeProvisioner(cfg config.BrowserConfig, existing map[string]bool, env map[string]string, system string, download func() (string, error)) (*Provisioner, *int) {
	p := NewProvisioner(cfg)
	downloads := 0
	p.getenv = func(k string) string { return env[k] }
	p.stat = func(path string) error {
		if existing[path] {
			return nil
		}
		return os.ErrNotExist
	}
	p.lookPath = func() (string, bool) { return system, system != "" }
	p.download = func() (string, error) {
		downloads++
		if download == nil {
			return "", errors.New("no network")
		}
		return download()
	}
	return p, &downloads
}

func TestProvisioner_ResolveOrder(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.BrowserConfig
		existing   map[string]bool
		env        map[string]string
		system     string
		wantPath   string
		wantSource Source
	}{
		{
			name:       "explicit path wins",
			cfg:        config.BrowserConfig{Bin: "/opt/chrome"},
			existing:   map[string]bool{"/opt/chrome": true, "/env/chrome": true},
			env:        map[string]string{config.BinaryEnvVar: "/env/chrome"},
			system:     "/usr/bin/chromium",
			wantPath:   "/opt/chrome",
			wantSource: SourceConfig,
		},
		{
			name:       "env before system",
			existing:   map[string]bool{"/env/chrome": true},
			env:        map[string]string{config.BinaryEnvVar: "/env/chrome"},
			system:     "/usr/bin/chromium",
			wantPath:   "/env/chrome",
			wantSource: SourceEnv,
		},
		{
			name:       "missing env binary falls through to system",
			env:        map[string]string{config.BinaryEnvVar: "/env/missing"},
			system:     "/usr/bin/chromium",
			wantPath:   "/usr/bin/chromium",
			wantSource: SourceSystem,
		},
		{
			name:       "download as last resort",
			cfg:        config.BrowserConfig{AutoDownload: true},
			wantPath:   "/cache/chromium",
			wantSource: SourceDownload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := fakeProvisioner(tt.cfg, tt.existing, tt.env, tt.system, func() (string, error) {
				return "/cache/chromium", nil
			})

			got, err := p.Resolve()
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.wantPath {
				t.Errorf("Resolve() = %q, want %q", got, tt.wantPath)
			}
			if p.Source() != tt.wantSource {
				t.Errorf("Source() = %q, want %q", p.Source(), tt.wantSource)
			}
		})
	}
}

func TestProvisioner_ExplicitPathMissing(t *testing.T) {
	p, _ := fakeProvisioner(config.BrowserConfig{Bin: "/nope"}, nil, nil, "/usr/bin/chromium", nil)

	if _, err := p.Resolve(); !errors.Is(err, apperrors.ErrBinaryNotFound) {
		t.Errorf("Resolve() error = %v, want ErrBinaryNotFound", err)
	}
}

func TestProvisioner_NotFoundWithoutDownload(t *testing.T) {
	p, downloads := fakeProvisioner(config.BrowserConfig{AutoDownload: false}, nil, nil, "", nil)

	if _, err := p.Resolve(); !errors.Is(err, apperrors.ErrBinaryNotFound) {
		t.Errorf("Resolve() error = %v, want ErrBinaryNotFound", err)
	}
	if *downloads != 0 {
		t.Errorf("download called %d times, want 0", *downloads)
	}
}

func TestProvisioner_ResolvesOnce(t *testing.T) {
	p, downloads := fakeProvisioner(config.BrowserConfig{AutoDownload: true}, nil, nil, "", nil)

	_, err1 := p.Resolve()
	_, err2 := p.Resolve()

	if err1 == nil || err2 == nil {
		t.Fatal("expected failed download to surface as an error")
	}
	if !errors.Is(err1, apperrors.ErrBinaryNotFound) {
		t.Errorf("Resolve() error = %v, want ErrBinaryNotFound", err1)
	}
	if *downloads != 1 {
		t.Errorf("download called %d times, want 1", *downloads)
	}
}
