package browser

import (
	"os"
	"sync"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/Iron-Ham/pollrunner/internal/config"
	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
)

// Source names where a browser binary was found.
type Source string

const (
	SourceConfig   Source = "config"
	SourceEnv      Source = "env"
	SourceSystem   Source = "system"
	SourceDownload Source = "download"
)

// Provisioner resolves the browser binary exactly once and hands the same
// answer to every worker.
type Provisioner struct {
	bin          string
	autoDownload bool

	getenv   func(string) string
	stat     func(string) error
	lookPath func() (string, bool)
	download func() (string, error)

	once   sync.Once
	path   string
	source Source
	err    error
}

// NewProvisioner creates a Provisioner for cfg.
func NewProvisioner(cfg config.BrowserConfig) *Provisioner {
	return &Provisioner{
		bin:          cfg.Bin,
		autoDownload: cfg.AutoDownload,
		getenv:       os.Getenv,
		stat: func(p string) error {
			_, err := os.Stat(p)
			return err
		},
		lookPath: launcher.LookPath,
		download: func() (string, error) {
			return launcher.NewBrowser().Get()
		},
	}
}

// Resolve returns the browser binary path. The lookup order is the configured
// path, $CHROME_BINARY, a search of well-known install locations, then a
// managed download when enabled. Only the first call does any work.
func (p *Provisioner) Resolve() (string, error) {
	p.once.Do(func() {
		p.path, p.source, p.err = p.resolve()
	})
	return p.path, p.err
}

// Source reports where the resolved binary came from. Empty until Resolve
// succeeds.
func (p *Provisioner) Source() Source {
	_, _ = p.Resolve()
	return p.source
}

func (p *Provisioner) resolve() (string, Source, error) {
	if p.bin != "" {
		if err := p.stat(p.bin); err != nil {
			return "", "", apperrors.Wrapf(apperrors.ErrBinaryNotFound, "browser.bin %q", p.bin)
		}
		return p.bin, SourceConfig, nil
	}

	if env := p.getenv(config.BinaryEnvVar); env != "" {
		if err := p.stat(env); err == nil {
			return env, SourceEnv, nil
		}
	}

	if found, ok := p.lookPath(); ok {
		return found, SourceSystem, nil
	}

	if p.autoDownload {
		path, err := p.download()
		if err != nil {
			return "", "", apperrors.Wrap(apperrors.ErrBinaryNotFound, "download failed: "+err.Error())
		}
		return path, SourceDownload, nil
	}

	return "", "", apperrors.ErrBinaryNotFound
}
