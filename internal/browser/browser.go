// Package browser adapts playwright-go into the closed Controller
// contract the step executor drives: initialize, navigate, read the DOM,
// execute a command batch against candidate ids, and close. Lower-level
// locator primitives (click, fill, hover by selector) are unexported
// building blocks behind ExecuteActionBatch rather than a public
// surface callers reach for directly.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/cognitivelattice/web-agent/internal/diff"
	"github.com/cognitivelattice/web-agent/internal/dom"
	"github.com/cognitivelattice/web-agent/internal/model"
)

const (
	defaultNavTimeout    = 30 * time.Second
	defaultActionTimeout = 10 * time.Second
	headlessEnv          = "AGENT_HEADLESS"
	defaultScrollAmount  = 600
	stableDOMDebounce    = 400 * time.Millisecond
)

// Controller is the full set of operations the step executor and
// coordinator drive the browser through. Every method called against it
// elsewhere in the agent is declared here, including Hover,
// WaitForStableDOM, and a Scroll that reports the distance actually
// scrolled.
type Controller interface {
	Initialize(ctx context.Context, profile string, headless bool) error
	Navigate(ctx context.Context, url string) error
	GetCurrentDOM(ctx context.Context) (html, title, url string, err error)
	ExecuteActionBatch(ctx context.Context, batch model.CommandBatch, pctx model.PageContext) (model.Evidence, error)
	Hover(ctx context.Context, candidateID int, pctx model.PageContext) error
	WaitForStableDOM(ctx context.Context, timeout time.Duration) error
	Scroll(ctx context.Context, direction string, distance int) (int, error)
	Close(ctx context.Context, saveStatePath string) error
	Page() playwright.Page
}

// Launcher owns the playwright process and the single browser instance;
// Controllers created from it share that browser but each get their own
// context/page, separating process lifetime from per-task browsing
// state.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewLauncher(ctx context.Context) (*Launcher, error) {
	if err := ensureDeps(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	headless := parseBoolEnv(headlessEnv, false)
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, headless: headless}, nil
}

// NewController implements Controller.Initialize's ok|fail contract: it
// opens a browser context (optionally resuming a saved storage-state
// profile) and a single page, ready for Navigate.
func (l *Launcher) NewController(ctx context.Context, profile string) (Controller, error) {
	c := &controller{}
	if err := c.attach(l, profile); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type controller struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (c *controller) attach(l *Launcher, profile string) error {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if strings.TrimSpace(profile) != "" {
		opts.StorageStatePath = playwright.String(profile)
	}
	ctxt, err := l.browser.NewContext(opts)
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	page, err := ctxt.NewPage()
	if err != nil {
		_ = ctxt.Close()
		return fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	c.context = ctxt
	c.page = page
	return nil
}

// Initialize satisfies Controller for callers that already hold a
// *controller built via Launcher.NewController; a second call is a no-op
// re-verification that the page is still reachable.
func (c *controller) Initialize(ctx context.Context, profile string, headless bool) error {
	_, _ = profile, headless
	if c.page == nil {
		return fmt.Errorf("browser: controller not attached to a launcher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (c *controller) Page() playwright.Page {
	return c.page
}

func (c *controller) Close(ctx context.Context, saveStatePath string) error {
	if strings.TrimSpace(saveStatePath) != "" {
		if err := c.saveState(ctx, saveStatePath); err != nil {
			return err
		}
	}
	if c.page != nil {
		_ = c.page.Close()
	}
	if c.context != nil {
		return c.context.Close()
	}
	return nil
}

func (c *controller) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	return wrap(err)
}

// GetCurrentDOM serializes the page, including open shadow roots, into a
// single HTML string for internal/dom.Extract to work from. It tries a
// JS walk that inlines shadow roots first; when that evaluate call
// errors out (detached frame, navigation mid-call) it falls back to the
// page's plain serialized content.
func (c *controller) GetCurrentDOM(ctx context.Context) (string, string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", "", err
	}
	html, err := c.serializeWithShadowRoots()
	if err != nil {
		html, err = c.page.Content()
		if err != nil {
			return "", "", "", wrap(err)
		}
	}
	title, err := c.page.Title()
	if err != nil {
		title = ""
	}
	return html, title, c.page.URL(), nil
}

// serializeWithShadowRoots inlines open shadow roots into their host's
// innerHTML so internal/dom.Extract can see into web components that
// document.documentElement.outerHTML alone would hide.
func (c *controller) serializeWithShadowRoots() (string, error) {
	const script = `() => {
		function inline(root) {
			const walker = document.createTreeWalker(root, NodeFilter.SHOW_ELEMENT);
			let node = walker.currentNode;
			do {
				if (node.shadowRoot) {
					const marker = document.createElement('div');
					marker.setAttribute('data-shadow-host', node.tagName.toLowerCase());
					marker.innerHTML = inline(node.shadowRoot);
					node.appendChild(marker);
				}
			} while ((node = walker.nextNode()));
			return root.innerHTML || '';
		}
		return '<html>' + inline(document.documentElement) + '</html>';
	}`
	raw, err := c.page.Evaluate(script)
	if err != nil {
		return "", err
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("browser: empty shadow-dom serialization")
	}
	return s, nil
}

// ExecuteActionBatch runs each Command in batch order, resolving
// candidate_id against pctx, falling back across an Element's selector
// list on failure, and recording an error per command that never
// succeeds. A failed navigate is terminal for the batch; every other
// failure is recorded and the batch continues.
func (c *controller) ExecuteActionBatch(ctx context.Context, batch model.CommandBatch, pctx model.PageContext) (model.Evidence, error) {
	start := time.Now()
	ev := model.NewEvidence()
	ev.DOMBeforeSig = pctx.Signature

commands:
	for _, cmd := range batch.Commands {
		if err := ctx.Err(); err != nil {
			ev.Errors = append(ev.Errors, fmt.Sprintf("cancelled: %v", err))
			break commands
		}
		switch cmd.Type {
		case model.CommandNoop:
			continue
		case model.CommandNavigate:
			if err := c.Navigate(ctx, cmd.URL); err != nil {
				ev.Errors = append(ev.Errors, fmt.Sprintf("navigate: %v", err))
				break commands
			}
		case model.CommandClick:
			if err := c.resolveAndDo(pctx, cmd.CandidateID, func(sel string) error {
				return c.clickSelector(ctx, sel)
			}); err != nil {
				ev.Errors = append(ev.Errors, fmt.Sprintf("click: %v", err))
				continue
			}
			ev.UsedCandidateID = cmd.CandidateID
		case model.CommandTypeText:
			if err := c.resolveAndDo(pctx, cmd.CandidateID, func(sel string) error {
				return c.fillSelector(ctx, sel, cmd.Text)
			}); err != nil {
				ev.Errors = append(ev.Errors, fmt.Sprintf("type: %v", err))
				continue
			}
			ev.UsedCandidateID = cmd.CandidateID
			if cmd.PressEnter {
				if err := c.page.Keyboard().Press("Enter"); err != nil {
					ev.Errors = append(ev.Errors, fmt.Sprintf("press enter: %v", wrap(err)))
				}
			}
		case model.CommandPress:
			key := cmd.Key
			if key == "" {
				key = "Enter"
			}
			if err := c.page.Keyboard().Press(key); err != nil {
				ev.Errors = append(ev.Errors, fmt.Sprintf("press %s: %v", key, wrap(err)))
				continue
			}
		case model.CommandWaitFor:
			timeout := time.Duration(cmd.TimeoutMS) * time.Millisecond
			if cmd.SignatureChange {
				if err := c.waitForSignatureChange(ctx, pctx.Signature, timeout); err != nil {
					ev.Errors = append(ev.Errors, fmt.Sprintf("wait_for: %v", err))
				}
				continue
			}
			if timeout <= 0 {
				timeout = defaultActionTimeout
			}
			select {
			case <-time.After(timeout):
			case <-ctx.Done():
				ev.Errors = append(ev.Errors, fmt.Sprintf("wait_for: %v", ctx.Err()))
				break commands
			}
		default:
			ev.Errors = append(ev.Errors, fmt.Sprintf("unsupported command type %q", cmd.Type))
		}
	}

	_ = c.WaitForStableDOM(ctx, stableDOMDebounce)

	afterHTML, _, _, err := c.GetCurrentDOM(ctx)
	if err != nil {
		ev.Errors = append(ev.Errors, fmt.Sprintf("dom_after_sig: %v", err))
	} else {
		ev.DOMAfterSig = dom.Signature(dom.Compress(afterHTML, pctx.CurrentStepGoal, nil))
		if diff.ShouldDiff("action", pctx.CurrentStepGoal) && ev.DOMBeforeSig != ev.DOMAfterSig {
			ev.Findings["dom_diff"] = diff.AnalyzeChanges(pctx.RawDOM, afterHTML)
		}
	}

	ev.Changed = ev.DOMBeforeSig != ev.DOMAfterSig
	ev.Success = len(ev.Errors) == 0 && len(batch.Commands) > 0
	ev.TimingMS = time.Since(start).Milliseconds()
	return ev, nil
}

// resolveAndDo looks up candidateID in pctx and runs fn against each of
// the element's selectors in turn until one succeeds.
func (c *controller) resolveAndDo(pctx model.PageContext, candidateID int, fn func(selector string) error) error {
	el, ok := dom.ResolveCandidate(pctx, candidateID)
	if !ok {
		return fmt.Errorf("candidate_id %d not found in page context", candidateID)
	}
	if len(el.Selectors) == 0 {
		return fmt.Errorf("candidate_id %d has no selectors", candidateID)
	}
	var lastErr error
	for _, sel := range el.Selectors {
		if err := fn(sel); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *controller) clickSelector(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return wrap(err)
	}
	_ = loc.ScrollIntoViewIfNeeded()
	return wrap(loc.Click())
}

func (c *controller) fillSelector(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return wrap(err)
	}
	return wrap(loc.Fill(text))
}

func (c *controller) waitForSignatureChange(ctx context.Context, before string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		html, _, _, err := c.GetCurrentDOM(ctx)
		if err == nil {
			sig := dom.Signature(dom.Compress(html, "", nil))
			if sig != before {
				return nil
			}
		}
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("dom signature unchanged after %v", timeout)
}

// Hover resolves a candidate id and hovers its element, falling back
// across selectors the same way ExecuteActionBatch's click/fill do.
func (c *controller) Hover(ctx context.Context, candidateID int, pctx model.PageContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.resolveAndDo(pctx, candidateID, func(sel string) error {
		loc := c.page.Locator(sel).First()
		if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
			return wrap(err)
		}
		return wrap(loc.Hover())
	})
}

// WaitForStableDOM waits a fixed short debounce for the DOM to settle.
// It deliberately does not pin on content equality: content legitimately
// mutates continuously on some pages (a live clock, a carousel), so a
// sampling loop would never converge there.
func (c *controller) WaitForStableDOM(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = stableDOMDebounce
	}
	select {
	case <-time.After(timeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scroll moves the viewport and reports the distance actually applied
// (capped to the special "top"/"bottom" jumps, which report 0 since the
// exact pixel delta is unknown without a follow-up read).
func (c *controller) Scroll(ctx context.Context, direction string, distance int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if distance <= 0 {
		distance = defaultScrollAmount
	}
	move := distance
	switch strings.ToLower(direction) {
	case "up", "north":
		move = -distance
	case "top":
		_, err := c.page.Evaluate("window.scrollTo(0,0);")
		return 0, wrap(err)
	case "bottom":
		_, err := c.page.Evaluate("window.scrollTo(0, document.body.scrollHeight);")
		return 0, wrap(err)
	case "page_down":
		move = distance * 2
	case "page_up":
		move = -distance * 2
	}
	script := fmt.Sprintf("window.scrollBy(0,%d);", move)
	if _, err := c.page.Evaluate(script); err != nil {
		return 0, wrap(err)
	}
	return move, nil
}

func (c *controller) saveState(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := c.context.StorageState()
	if err != nil {
		return wrap(err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func ensureDeps() error {
	// Browsers usually preinstalled in this workspace. Hook for future checks.
	return nil
}
