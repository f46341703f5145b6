package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Iron-Ham/pollrunner/internal/config"
	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
	"github.com/Iron-Ham/pollrunner/internal/logging"
	"github.com/Iron-Ham/pollrunner/internal/session"
)

// Attempt step names used in errors and logs.
const (
	stepNavigate  = "navigate"
	stepContainer = "poll container"
	stepCheckbox  = "select checkbox"
	stepVote      = "submit vote"
	stepConfirm   = "confirm vote"
)

const (
	healthProbeTimeout = 2 * time.Second
	cleanupTimeout     = 5 * time.Second
)

// Session is a session.Session backed by a dedicated browser process.
type Session struct {
	iso     session.Isolation
	browser config.BrowserConfig
	target  config.TargetConfig
	prov    *Provisioner
	logger  *logging.Logger

	state  atomic.Int32
	closed bool

	lock     *session.ProfileLock
	cancel   context.CancelFunc
	launcher *launcher.Launcher
	rod      *rod.Browser
	page     *rod.Page
}

var _ session.Session = (*Session)(nil)

// NewSession creates an unopened Session for one worker.
func NewSession(iso session.Isolation, cfg *config.Config, prov *Provisioner, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Session{
		iso:     iso,
		browser: cfg.Browser,
		target:  cfg.Target,
		prov:    prov,
		logger:  logger.WithWorker(iso.Index),
	}
}

// NewFactory returns a session.Factory that builds browser Sessions sharing prov.
func NewFactory(cfg *config.Config, prov *Provisioner, logger *logging.Logger) session.Factory {
	return func(iso session.Isolation) (session.Session, error) {
		return NewSession(iso, cfg, prov, logger), nil
	}
}

// Index implements session.Session.
func (s *Session) Index() int { return s.iso.Index }

// State implements session.Session.
func (s *Session) State() session.State { return session.State(s.state.Load()) }

func (s *Session) setState(st session.State) { s.state.Store(int32(st)) }

// Open implements session.Session.
func (s *Session) Open(ctx context.Context) error {
	if s.closed {
		return apperrors.ErrSessionClosed
	}
	if s.rod != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return s.setupFailed("open", err)
	}

	bin, err := s.prov.Resolve()
	if err != nil {
		return s.setupFailed("resolve browser binary", err)
	}

	lock, err := session.AcquireProfileLock(s.iso.ProfileDir, s.iso.Index, s.logger)
	if err != nil {
		return s.setupFailed("lock profile", err)
	}
	s.lock = lock

	if err := checkPortFree(s.iso.Port); err != nil {
		return s.setupFailed("reserve control port", err)
	}

	if err := s.launch(bin); err != nil {
		return s.setupFailed("launch browser", fmt.Errorf("%w: %w", apperrors.ErrLaunchFailed, err))
	}

	s.setState(session.StateIdle)
	s.logger.Info("browser launched",
		"bin", bin,
		"source", string(s.prov.Source()),
		"port", s.iso.Port,
		"profile_dir", s.iso.ProfileDir,
		"headless", s.browser.Headless,
	)
	return nil
}

func (s *Session) setupFailed(msg string, cause error) error {
	s.setState(session.StateFailed)
	return apperrors.NewSetupError(msg, cause).
		WithWorker(s.iso.Index).
		WithPort(s.iso.Port).
		WithProfileDir(s.iso.ProfileDir)
}

// launch starts the browser process and opens the page all attempts reuse.
// The connection outlives any single call so an in-flight submit is never
// cut short by a stop request; Close cancels it.
func (s *Session) launch(bin string) error {
	connCtx, cancel := context.WithCancel(context.Background())

	l := launcher.New().
		Context(connCtx).
		Bin(bin).
		Headless(s.browser.Headless).
		NoSandbox(s.browser.NoSandbox).
		UserDataDir(s.iso.ProfileDir).
		RemoteDebuggingPort(s.iso.Port).
		Set(flags.Flag("mute-audio")).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled")

	controlURL, err := l.Launch()
	if err != nil {
		cancel()
		return err
	}

	b := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := b.Connect(); err != nil {
		l.Kill()
		cancel()
		return fmt.Errorf("connect: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		cancel()
		return fmt.Errorf("create page: %w", err)
	}

	s.cancel = cancel
	s.launcher = l
	s.rod = b
	s.page = page
	return nil
}

// teardown drops a dead browser so the next attempt relaunches it. The
// profile lock is kept.
func (s *Session) teardown() {
	if s.rod != nil {
		_ = s.rod.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.rod, s.page, s.launcher, s.cancel = nil, nil, nil, nil
}

func (s *Session) healthy() bool {
	if s.rod == nil {
		return false
	}
	_, err := s.rod.Timeout(healthProbeTimeout).Version()
	return err == nil
}

// RunAttempt implements session.Session.
func (s *Session) RunAttempt(ctx context.Context) error {
	if s.closed {
		return apperrors.ErrSessionClosed
	}
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.ErrInterrupted, stepNavigate)
	}

	if s.rod == nil {
		bin, err := s.prov.Resolve()
		if err == nil {
			err = s.launch(bin)
		}
		if err != nil {
			s.setState(session.StateFailed)
			return apperrors.NewAttemptError(apperrors.KindEngineCrashed, "relaunch browser", err).WithWorker(s.iso.Index)
		}
		s.logger.Info("browser relaunched", "port", s.iso.Port)
	}

	page := s.page

	s.setState(session.StateNavigating)
	if err := s.navigate(ctx, page); err != nil {
		return s.fail(ctx, stepNavigate, err, false)
	}
	s.dismissOverlays(ctx, page)
	if err := s.ensureContainer(ctx, page); err != nil {
		return s.fail(ctx, stepContainer, err, false)
	}

	s.setState(session.StateActing)
	if err := s.selectCheckbox(ctx, page); err != nil {
		return s.fail(ctx, stepCheckbox, err, false)
	}
	if ctx.Err() != nil {
		s.setState(session.StateIdle)
		return apperrors.Wrap(apperrors.ErrInterrupted, stepVote)
	}

	// From here on the vote may be visible to the site, so finish it.
	submit := context.WithoutCancel(ctx)
	el, err := s.find(submit, page, s.target.VoteSelector)
	if err == nil {
		err = s.click(el)
	}
	if err != nil {
		return s.fail(submit, stepVote, err, true)
	}
	if err := s.confirm(submit, page); err != nil {
		return s.fail(submit, stepConfirm, err, true)
	}

	s.setState(session.StateIdle)
	return nil
}

// fail turns a step error into the attempt's result. Before submit a
// cancelled ctx wins and the attempt is reported as interrupted.
func (s *Session) fail(ctx context.Context, step string, err error, submitted bool) error {
	if !submitted && ctx.Err() != nil {
		s.setState(session.StateIdle)
		return apperrors.Wrap(apperrors.ErrInterrupted, step)
	}

	attemptErr := s.classify(step, err)
	s.setState(session.StateFailed)
	if attemptErr.Kind == apperrors.KindEngineCrashed {
		s.logger.Warn("browser engine crashed, will relaunch", "step", step, "error", err.Error())
		s.teardown()
	}
	return attemptErr
}

func (s *Session) classify(step string, err error) *apperrors.AttemptError {
	if !s.healthy() {
		return apperrors.NewAttemptError(apperrors.KindEngineCrashed, step, err).WithWorker(s.iso.Index)
	}
	var attemptErr *apperrors.AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.WithWorker(s.iso.Index)
	}
	return apperrors.NewAttemptError(classifyKind(step, err), step, err).WithWorker(s.iso.Index)
}

// classifyKind maps a rod or context error from a step to a failure kind.
func classifyKind(step string, err error) apperrors.Kind {
	var (
		navErr       *rod.NavigationError
		notFound     *rod.ElementNotFoundError
		covered      *rod.CoveredError
		notClickable *rod.NotInteractableError
		invisible    *rod.InvisibleShapeError
	)
	switch {
	case errors.As(err, &navErr):
		return apperrors.KindNavigationTimeout
	case errors.Is(err, context.DeadlineExceeded):
		if step == stepNavigate {
			return apperrors.KindNavigationTimeout
		}
		return apperrors.KindElementNotFound
	case errors.As(err, &notFound), errors.As(err, &covered),
		errors.As(err, &notClickable), errors.As(err, &invisible):
		return apperrors.KindElementNotFound
	default:
		return apperrors.KindUnknown
	}
}

func (s *Session) navigate(ctx context.Context, page *rod.Page) error {
	p := page.Context(ctx).Timeout(s.browser.PageLoadTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(s.target.URL); err != nil {
		return err
	}
	return p.WaitLoad()
}

// find waits up to the element timeout for sel.
func (s *Session) find(ctx context.Context, page *rod.Page, sel string) (*rod.Element, error) {
	p := page.Context(ctx).Timeout(s.browser.ElementTimeout)
	defer p.CancelTimeout()

	el, err := p.Element(sel)
	if err != nil {
		return nil, err
	}
	return el.Context(ctx), nil
}

func (s *Session) click(el *rod.Element) error {
	t := el.Timeout(s.browser.ElementTimeout)
	defer t.CancelTimeout()
	return t.Click(proto.InputMouseButtonLeft, 1)
}

// dismissOverlays clicks any visible cookie banner or popup close button.
// Overlays are optional, so failures are only logged.
func (s *Session) dismissOverlays(ctx context.Context, page *rod.Page) {
	for _, sel := range s.target.DismissSelectors {
		has, el, err := page.Context(ctx).Has(sel)
		if err != nil || !has {
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		if err := s.click(el); err != nil {
			s.logger.Debug("overlay dismiss failed", "selector", sel, "error", err.Error())
			continue
		}
		s.logger.Debug("overlay dismissed", "selector", sel)
	}
}

// ensureContainer checks the poll widget rendered, reloading once if not.
func (s *Session) ensureContainer(ctx context.Context, page *rod.Page) error {
	sel := s.target.ContainerSelector
	if sel == "" {
		return nil
	}
	if _, err := s.find(ctx, page, sel); err == nil || ctx.Err() != nil {
		return err
	}

	s.logger.Debug("poll container missing, reloading", "selector", sel)
	if err := s.navigate(ctx, page); err != nil {
		return err
	}
	s.dismissOverlays(ctx, page)
	if _, err := s.find(ctx, page, sel); err != nil {
		return apperrors.NewAttemptError(apperrors.KindElementNotFound, stepContainer, err)
	}
	return nil
}

type clickStrategy struct {
	name string
	fn   func(el *rod.Element) error
}

func (s *Session) checkboxStrategies() []clickStrategy {
	return []clickStrategy{
		{"click", s.click},
		{"script", func(el *rod.Element) error {
			_, err := el.Eval(`() => this.click()`)
			return err
		}},
		{"scroll", func(el *rod.Element) error {
			if err := el.ScrollIntoView(); err != nil {
				return err
			}
			return s.click(el)
		}},
		{"keyboard", func(el *rod.Element) error {
			return el.Type(input.Space)
		}},
	}
}

// selectCheckbox tries each click strategy until the answer reads as selected.
func (s *Session) selectCheckbox(ctx context.Context, page *rod.Page) error {
	el, err := s.find(ctx, page, s.target.CheckboxSelector)
	if err != nil {
		return err
	}
	if checked(el) {
		return nil
	}

	for _, st := range s.checkboxStrategies() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.fn(el); err != nil {
			s.logger.Debug("checkbox strategy failed", "strategy", st.name, "error", err.Error())
			continue
		}
		if checked(el) {
			if st.name != "click" {
				s.logger.Debug("checkbox selected by fallback", "strategy", st.name)
			}
			return nil
		}
	}
	return apperrors.NewAttemptError(apperrors.KindStateUnchanged, stepCheckbox, nil)
}

func checked(el *rod.Element) bool {
	res, err := el.Eval(`() => this.checked === true || this.getAttribute('aria-checked') === 'true'`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// confirm follows the return-to-poll link and checks for a refusal marker.
func (s *Session) confirm(ctx context.Context, page *rod.Page) error {
	var returnErr error
	if sel := s.target.ReturnSelector; sel != "" {
		el, err := s.find(ctx, page, sel)
		if err == nil {
			err = s.click(el)
		}
		returnErr = err
	}

	if sel := s.target.AlreadyVotedSelector; sel != "" {
		if has, _, err := page.Context(ctx).Has(sel); err == nil && has {
			return apperrors.NewAttemptError(apperrors.KindAlreadyVoted, stepConfirm, nil)
		}
	}
	return returnErr
}

// Close implements session.Session.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.rod != nil {
		if err := s.rod.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	l := s.launcher
	if l != nil {
		l.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release profile lock: %w", err))
	}
	if s.lock != nil && !s.browser.KeepProfiles {
		s.removeProfile(l)
	}

	s.rod, s.page, s.launcher, s.cancel = nil, nil, nil, nil
	s.setState(session.StateClosed)
	s.logger.Debug("session closed")
	return errors.Join(errs...)
}

// removeProfile deletes the profile directory once the browser has exited.
func (s *Session) removeProfile(l *launcher.Launcher) {
	if l != nil {
		done := make(chan struct{})
		go func() {
			l.Cleanup()
			close(done)
		}()
		select {
		case <-done:
			return
		case <-time.After(cleanupTimeout):
			s.logger.Warn("browser did not exit in time, removing profile anyway")
		}
	}
	if err := os.RemoveAll(s.iso.ProfileDir); err != nil {
		s.logger.Debug("profile removal failed", "profile_dir", s.iso.ProfileDir, "error", err.Error())
	}
}

func checkPortFree(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: %d", apperrors.ErrPortInUse, port)
	}
	return ln.Close()
}
