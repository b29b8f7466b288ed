package executor

import (
	"fmt"
	"strings"

	"github.com/entrhq/mend/pkg/script"
	"github.com/playwright-community/playwright-go"
)

// runSteps interprets the program against the session's page. The first
// failing step aborts the run; its error becomes the outcome's error text.
func (r *Runner) runSteps(s *session, prog *script.Program, taskID string) error {
	for i, step := range prog.Steps {
		if err := r.runStep(s, step, taskID, i+1); err != nil {
			return fmt.Errorf("step %d (%s): %v", i+1, step.Action, err)
		}
	}
	return nil
}

func (r *Runner) runStep(s *session, step script.Step, taskID string, index int) error {
	switch step.Action {
	case script.ActionNavigate:
		return r.navigate(s, step)
	case script.ActionWait:
		return r.waitFor(s, step)
	case script.ActionClick:
		return r.click(s, step)
	case script.ActionFill:
		return r.fill(s, step)
	case script.ActionPress:
		return r.press(s, step)
	case script.ActionEvaluate:
		return r.evaluate(s, step)
	case script.ActionScreenshot:
		return r.screenshot(s, step, taskID, index)
	case script.ActionAssertText:
		return r.assertText(s, step)
	default:
		return fmt.Errorf("unsupported action %q", step.Action)
	}
}

func (r *Runner) navigate(s *session, step script.Step) error {
	if step.URL == "" {
		return fmt.Errorf("navigate requires a url")
	}

	opts := playwright.PageGotoOptions{}
	if step.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(step.WaitUntil)
		opts.WaitUntil = &waitUntil
	}
	if step.TimeoutMs > 0 {
		opts.Timeout = &step.TimeoutMs
	}

	if _, err := s.page.Goto(step.URL, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (r *Runner) waitFor(s *session, step script.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("wait requires a selector")
	}

	opts := playwright.PageWaitForSelectorOptions{}
	if step.State != "" {
		state := playwright.WaitForSelectorState(step.State)
		opts.State = &state
	}
	if step.TimeoutMs > 0 {
		opts.Timeout = &step.TimeoutMs
	}

	if _, err := s.page.WaitForSelector(step.Selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (r *Runner) click(s *session, step script.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("click requires a selector")
	}

	opts := playwright.PageClickOptions{}
	if step.TimeoutMs > 0 {
		opts.Timeout = &step.TimeoutMs
	}

	if err := s.page.Click(step.Selector, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (r *Runner) fill(s *session, step script.Step) error {
	if step.Selector == "" {
		return fmt.Errorf("fill requires a selector")
	}

	opts := playwright.PageFillOptions{}
	if step.TimeoutMs > 0 {
		opts.Timeout = &step.TimeoutMs
	}

	if err := s.page.Fill(step.Selector, step.Value, opts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (r *Runner) press(s *session, step script.Step) error {
	if step.Selector == "" || step.Key == "" {
		return fmt.Errorf("press requires a selector and a key")
	}

	opts := playwright.PagePressOptions{}
	if step.TimeoutMs > 0 {
		opts.Timeout = &step.TimeoutMs
	}

	if err := s.page.Press(step.Selector, step.Key, opts); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

func (r *Runner) evaluate(s *session, step script.Step) error {
	if step.Expression == "" {
		return fmt.Errorf("evaluate requires an expression")
	}

	if _, err := s.page.Evaluate(step.Expression); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func (r *Runner) screenshot(s *session, step script.Step, taskID string, index int) error {
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("step%d", index)
	}

	path, err := r.store.ScreenshotPath(taskID, name)
	if err != nil {
		return err
	}

	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	}); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}

	s.capture.addScreenshot(path)
	return nil
}

// assertText fails with an unexpected-state error when the expected text is
// absent from the page (or the scoped element).
func (r *Runner) assertText(s *session, step script.Step) error {
	if step.Value == "" {
		return fmt.Errorf("assert_text requires a value")
	}

	selector := step.Selector
	if selector == "" {
		selector = "body"
	}

	element, err := s.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("selector query failed: %w", err)
	}
	if element == nil {
		return fmt.Errorf("no element found matching selector: %s", selector)
	}

	content, err := element.TextContent()
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	if !strings.Contains(content, step.Value) {
		return fmt.Errorf("unexpected page state: expected text %q not found", step.Value)
	}
	return nil
}
