// Package browser implements session.Session on top of a Chromium browser
// driven over the DevTools protocol with go-rod.
//
// Each Session launches its own browser process with its own profile
// directory and remote debugging port, so workers never share cookies,
// storage or a DevTools connection. Binary resolution happens once per
// process through a Provisioner shared by every Session.
//
// Usage:
//
//	prov := browser.NewProvisioner(cfg.Browser)
//	factory := browser.NewFactory(cfg, prov, logger)
//	sess, _ := factory(session.IsolationFor(1, cfg.Browser.ResolveProfileRoot(), cfg.Browser.BasePort))
//	if err := sess.Open(ctx); err != nil {
//	    return err
//	}
//	defer sess.Close()
//	err := sess.RunAttempt(ctx)
package browser
