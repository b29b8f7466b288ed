// Package executor runs script versions in an isolated browser session and
// records structured outcomes.
//
// The runner never returns an error from Execute: driver failures, script
// failures, panics, and caller timeouts all become failed ExecutionOutcomes
// so the control loop can route them through diagnosis.
package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/entrhq/mend/pkg/artifacts"
	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/script"
	"github.com/entrhq/mend/pkg/task"
	"github.com/playwright-community/playwright-go"
)

// Options configures a Runner.
type Options struct {
	// BrowserType selects chromium, firefox, or webkit.
	BrowserType string

	// DefaultTimeoutMs applies to every page operation without an explicit
	// step timeout.
	DefaultTimeoutMs float64

	// ViewportWidth and ViewportHeight set the browser viewport.
	ViewportWidth  int
	ViewportHeight int
}

// Runner executes step programs through Playwright. One Runner serves many
// sequential executions; each execution gets a fresh browser.
type Runner struct {
	pw     *playwright.Playwright
	opts   Options
	store  *artifacts.Store
	logger *logging.Logger
}

// NewRunner installs and starts the Playwright driver. Driver output is
// discarded so it cannot pollute CLI output.
func NewRunner(opts Options, store *artifacts.Store, logger *logging.Logger) (*Runner, error) {
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	if opts.DefaultTimeoutMs == 0 {
		opts.DefaultTimeoutMs = 30000
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1920
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 1080
	}

	return &Runner{pw: pw, opts: opts, store: store, logger: logger}, nil
}

// Close stops the Playwright driver.
func (r *Runner) Close() error {
	return r.pw.Stop()
}

// browserType maps the configured name onto a Playwright browser type,
// defaulting to chromium.
func (r *Runner) browserType() playwright.BrowserType {
	switch r.opts.BrowserType {
	case "firefox":
		return r.pw.Firefox
	case "webkit":
		return r.pw.WebKit
	default:
		return r.pw.Chromium
	}
}

// capture accumulates console and network evidence from driver callbacks,
// which fire on driver goroutines.
type capture struct {
	mu       sync.Mutex
	console  []string
	network  []task.NetworkEvent
	shots    []string
}

func (c *capture) addConsole(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, line)
}

func (c *capture) addNetwork(e task.NetworkEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = append(c.network, e)
}

func (c *capture) addScreenshot(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shots = append(c.shots, path)
}

func (c *capture) snapshot() ([]string, []task.NetworkEvent, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.console...),
		append([]task.NetworkEvent(nil), c.network...),
		append([]string(nil), c.shots...)
}

// Execute runs one script version and returns its outcome. The context
// bounds the whole execution: on expiry the browser is torn down and the
// outcome reports a timeout failure.
func (r *Runner) Execute(ctx context.Context, sv *task.ScriptVersion, headless bool) *task.ExecutionOutcome {
	start := time.Now()
	outcome := &task.ExecutionOutcome{
		TaskID:     sv.TaskID,
		Version:    sv.Version,
		ExecutedAt: start,
	}

	fail := func(format string, v ...interface{}) *task.ExecutionOutcome {
		outcome.Success = false
		outcome.Error = fmt.Sprintf(format, v...)
		outcome.Duration = time.Since(start)
		return outcome
	}

	prog, err := script.Parse(sv.Source)
	if err != nil {
		return fail("script parse error: %v", err)
	}

	session, err := r.openSession(sv.TaskID, headless)
	if err != nil {
		return fail("failed to start browser session: %v", err)
	}

	r.logger.Infof("executing script v%d for task %s (%d steps, headless=%t)",
		sv.Version, sv.TaskID, len(prog.Steps), headless)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("execution panicked: %v", rec)
			}
		}()
		done <- r.runSteps(session, prog, sv.TaskID)
	}()

	var stepErr error
	timedOut := false
	select {
	case stepErr = <-done:
	case <-ctx.Done():
		timedOut = true
	}

	if !timedOut && stepErr == nil {
		// Best-effort final screenshot before teardown.
		if path, perr := r.store.ScreenshotPath(sv.TaskID, "final"); perr == nil {
			if _, serr := session.page.Screenshot(playwright.PageScreenshotOptions{
				Path: playwright.String(path),
			}); serr == nil {
				session.capture.addScreenshot(path)
			}
		}
	}

	session.close()
	outcome.VideoPath = session.videoPath()
	outcome.ConsoleLogs, outcome.NetworkEvents, outcome.Screenshots = session.capture.snapshot()
	outcome.Duration = time.Since(start)

	switch {
	case timedOut:
		outcome.Success = false
		outcome.Error = fmt.Sprintf("execution timed out after %s: %v", outcome.Duration.Round(time.Millisecond), ctx.Err())
	case stepErr != nil:
		outcome.Success = false
		outcome.Error = stepErr.Error()
	default:
		outcome.Success = true
	}

	r.logger.Infof("execution of task %s v%d finished in %s (success=%t)",
		sv.TaskID, sv.Version, outcome.Duration.Round(time.Millisecond), outcome.Success)
	return outcome
}

// session bundles the per-execution browser resources.
type session struct {
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	capture  *capture
	videoDir string
	logger   *logging.Logger
}

// openSession launches a fresh browser, context (with video recording), and
// page, and wires the console/network listeners.
func (r *Runner) openSession(taskID string, headless bool) (*session, error) {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	}
	if headless {
		// Flags required for containerized environments without an X server.
		launchOpts.Args = []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		}
	}

	browser, err := r.browserType().Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	videoDir, err := r.store.VideoDir(taskID)
	if err != nil {
		browser.Close()
		return nil, err
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  r.opts.ViewportWidth,
			Height: r.opts.ViewportHeight,
		},
		RecordVideo: &playwright.RecordVideo{
			Dir: videoDir,
			Size: &playwright.Size{
				Width:  r.opts.ViewportWidth,
				Height: r.opts.ViewportHeight,
			},
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(r.opts.DefaultTimeoutMs)

	cap := &capture{}
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		cap.addConsole(fmt.Sprintf("[%s] %s", msg.Type(), msg.Text()))
	})
	page.OnResponse(func(resp playwright.Response) {
		cap.addNetwork(task.NetworkEvent{
			Method:    resp.Request().Method(),
			URL:       resp.URL(),
			Status:    resp.Status(),
			Timestamp: time.Now(),
		})
	})

	return &session{
		browser:  browser,
		context:  browserCtx,
		page:     page,
		capture:  cap,
		videoDir: videoDir,
		logger:   r.logger,
	}, nil
}

// close tears down the session resources, ignoring errors so cleanup always
// completes.
func (s *session) close() {
	_ = s.page.Close()
	_ = s.context.Close()
	_ = s.browser.Close()
}

// videoPath returns the recorded video file, if one was produced. Recordings
// land in the video directory only after the context closes.
func (s *session) videoPath() string {
	matches, err := filepath.Glob(filepath.Join(s.videoDir, "*.webm"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}
