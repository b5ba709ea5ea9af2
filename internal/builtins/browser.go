// ABOUTME: Browser pack exposes the browser_* automation tools to MCP clients.
// ABOUTME: Handlers delegate to a BrowserDriver and render its results as text.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/hostmcp/internal/catalog"
)

// ErrBrowserUnavailable is returned by every browser tool when no driver is attached.
var ErrBrowserUnavailable = errors.New("browser automation is not available: no browser driver attached")

// DefaultWaitTimeout is used by browser_wait_for when no timeout is given.
const DefaultWaitTimeout = 30 * time.Second

// Tab describes one open browser tab.
type Tab struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Current bool   `json:"current"`
}

// ConsoleMessage is one entry of the page console.
type ConsoleMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// PageSnapshot is the state reported by browser_snapshot.
type PageSnapshot struct {
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	Tabs            []Tab            `json:"tabs"`
	ConsoleMessages []ConsoleMessage `json:"console_messages"`
}

// BrowserDriver is the browser automation collaborator. Methods that return a
// message may return "" to use the tool's default success text. Errors are
// shown to the agent verbatim.
type BrowserDriver interface {
	Open(ctx context.Context, headless bool) (string, error)
	Navigate(ctx context.Context, url string) (string, error)
	Click(ctx context.Context, selector string) (string, error)
	Type(ctx context.Context, selector, text string) (string, error)
	// Screenshot returns the image as a data URL or bare base64 JPEG.
	Screenshot(ctx context.Context, fullPage bool) (string, error)
	// Evaluate returns the script's result as JSON; nil means undefined.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Content(ctx context.Context) (string, error)
	Back(ctx context.Context) (string, error)
	Forward(ctx context.Context) (string, error)
	Reload(ctx context.Context) (string, error)
	Close(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (*PageSnapshot, error)
	Tabs(ctx context.Context) ([]Tab, error)
	NewTab(ctx context.Context, url string) (string, error)
	SwitchTab(ctx context.Context, index int) (string, error)
	CloseTab(ctx context.Context, index int) (string, error)
}

const emptyObjectSchema = `{"type":"object","properties":{}}`

// BrowserPack creates the browser automation pack. A nil driver yields tools
// that explain browser automation is unavailable.
func BrowserPack(driver BrowserDriver) *catalog.Pack {
	b := &browserHandlers{driver: driver}
	return &catalog.Pack{
		ID: "builtin:browser",
		Tools: []*catalog.Tool{
			tool("browser_open", "Open a new browser instance",
				`{"type":"object","properties":{"headless":{"type":"boolean","description":"Run in headless mode (no visible window). Default: false","default":false}}}`,
				b.Open),
			tool("browser_navigate", "Navigate to a URL in the browser (requires browser_open first)",
				`{"type":"object","properties":{"url":{"type":"string","description":"The URL to navigate to"}},"required":["url"]}`,
				b.Navigate),
			tool("browser_click", "Click an element on the page",
				`{"type":"object","properties":{"selector":{"type":"string","description":"CSS selector for the element to click"}},"required":["selector"]}`,
				b.Click),
			tool("browser_type", "Type text into an input field",
				`{"type":"object","properties":{"selector":{"type":"string","description":"CSS selector for the input field"},"text":{"type":"string","description":"Text to type"}},"required":["selector","text"]}`,
				b.Type),
			captureTool("browser_screenshot", "Take a screenshot of the current page",
				`{"type":"object","properties":{"full_page":{"type":"boolean","description":"Whether to capture the full page","default":false}}}`,
				b.Screenshot),
			tool("browser_evaluate", "Execute JavaScript in the browser",
				`{"type":"object","properties":{"script":{"type":"string","description":"JavaScript code to execute"}},"required":["script"]}`,
				b.Evaluate),
			tool("browser_wait_for", "Wait for an element to appear",
				`{"type":"object","properties":{"selector":{"type":"string","description":"CSS selector to wait for"},"timeout":{"type":"number","description":"Timeout in milliseconds","default":30000}},"required":["selector"]}`,
				b.WaitFor),
			tool("browser_get_content", "Get the HTML content of the current page", emptyObjectSchema, b.GetContent),
			tool("browser_go_back", "Navigate back in browser history", emptyObjectSchema, b.GoBack),
			tool("browser_go_forward", "Navigate forward in browser history", emptyObjectSchema, b.GoForward),
			tool("browser_reload", "Reload the current page", emptyObjectSchema, b.Reload),
			tool("browser_close", "Close the browser", emptyObjectSchema, b.Close),
			tool("browser_snapshot", "Get a snapshot of the current page state", emptyObjectSchema, b.Snapshot),
			tool("browser_tab_list", "List all open browser tabs", emptyObjectSchema, b.TabList),
			tool("browser_tab_new", "Open a new browser tab",
				`{"type":"object","properties":{"url":{"type":"string","description":"The URL to navigate to in the new tab. If not provided, the new tab will be blank."}}}`,
				b.TabNew),
			tool("browser_tab_switch", "Switch to a different browser tab",
				`{"type":"object","properties":{"index":{"type":"number","description":"Tab index to switch to"}},"required":["index"]}`,
				b.TabSwitch),
			tool("browser_tab_close", "Close a specific browser tab",
				`{"type":"object","properties":{"index":{"type":"number","description":"Tab index to close"}},"required":["index"]}`,
				b.TabClose),
		},
	}
}

type browserHandlers struct {
	driver BrowserDriver
}

func (b *browserHandlers) ready() error {
	if b.driver == nil {
		return ErrBrowserUnavailable
	}
	return nil
}

// message renders a driver call that reports a status line.
func (b *browserHandlers) message(fallback string, call func() (string, error)) (json.RawMessage, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	msg, err := call()
	if err != nil {
		return nil, err
	}
	if msg == "" {
		msg = fallback
	}
	return textResult(msg)
}

func (b *browserHandlers) Open(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Headless bool `json:"headless"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return b.message("Browser opened successfully", func() (string, error) {
		return b.driver.Open(ctx, in.Headless)
	})
}

func (b *browserHandlers) Navigate(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.URL == "" {
		return nil, errors.New("URL is required")
	}
	return b.message("Navigated successfully", func() (string, error) {
		return b.driver.Navigate(ctx, in.URL)
	})
}

func (b *browserHandlers) Click(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Selector string `json:"selector"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Selector == "" {
		return nil, errors.New("selector is required")
	}
	return b.message("Clicked successfully", func() (string, error) {
		return b.driver.Click(ctx, in.Selector)
	})
}

func (b *browserHandlers) Type(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Selector == "" || in.Text == "" {
		return nil, errors.New("both selector and text are required")
	}
	return b.message("Typed successfully", func() (string, error) {
		return b.driver.Type(ctx, in.Selector, in.Text)
	})
}

// Screenshot returns the image data; the bridge turns it into an image block.
func (b *browserHandlers) Screenshot(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		FullPage bool `json:"full_page"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := b.ready(); err != nil {
		return nil, err
	}
	data, err := b.driver.Screenshot(ctx, in.FullPage)
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

func (b *browserHandlers) Evaluate(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Script string `json:"script"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Script == "" {
		return nil, errors.New("script is required")
	}
	if err := b.ready(); err != nil {
		return nil, err
	}
	value, err := b.driver.Evaluate(ctx, in.Script)
	if err != nil {
		return nil, err
	}
	rendered := "undefined"
	if len(value) > 0 {
		rendered = string(value)
	}
	return textResult("Result: " + rendered)
}

func (b *browserHandlers) WaitFor(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Selector string   `json:"selector"`
		Timeout  *float64 `json:"timeout"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Selector == "" {
		return nil, errors.New("selector is required")
	}
	timeout := DefaultWaitTimeout
	if in.Timeout != nil {
		if *in.Timeout < 0 {
			return nil, errors.New("timeout must be non-negative")
		}
		timeout = time.Duration(*in.Timeout * float64(time.Millisecond))
	}
	return b.message("Element found", func() (string, error) {
		return b.driver.WaitFor(ctx, in.Selector, timeout)
	})
}

func (b *browserHandlers) GetContent(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return b.message("No content available", func() (string, error) {
		return b.driver.Content(ctx)
	})
}

func (b *browserHandlers) GoBack(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return b.message("Navigated back", func() (string, error) {
		return b.driver.Back(ctx)
	})
}

func (b *browserHandlers) GoForward(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return b.message("Navigated forward", func() (string, error) {
		return b.driver.Forward(ctx)
	})
}

func (b *browserHandlers) Reload(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return b.message("Page reloaded", func() (string, error) {
		return b.driver.Reload(ctx)
	})
}

func (b *browserHandlers) Close(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return b.message("Browser closed", func() (string, error) {
		return b.driver.Close(ctx)
	})
}

func (b *browserHandlers) Snapshot(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	snap, err := b.driver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return textResult("Snapshot captured but no data available")
	}
	return textResult(formatSnapshot(snap))
}

func (b *browserHandlers) TabList(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	tabs, err := b.driver.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	if len(tabs) == 0 {
		return textResult("No open tabs")
	}
	lines := make([]string, len(tabs))
	for i, t := range tabs {
		lines[i] = formatTab(t)
	}
	return textResult("Open tabs:\n" + strings.Join(lines, "\n"))
}

func (b *browserHandlers) TabNew(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return b.message("New tab opened", func() (string, error) {
		return b.driver.NewTab(ctx, in.URL)
	})
}

func (b *browserHandlers) TabSwitch(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	index, err := tabIndex(args)
	if err != nil {
		return nil, err
	}
	return b.message(fmt.Sprintf("Switched to tab %d", index), func() (string, error) {
		return b.driver.SwitchTab(ctx, index)
	})
}

func (b *browserHandlers) TabClose(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	index, err := tabIndex(args)
	if err != nil {
		return nil, err
	}
	return b.message("Tab closed", func() (string, error) {
		return b.driver.CloseTab(ctx, index)
	})
}

func tabIndex(args json.RawMessage) (int, error) {
	var in struct {
		Index float64 `json:"index"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return 0, err
	}
	if in.Index < 0 || in.Index != float64(int(in.Index)) {
		return 0, fmt.Errorf("index must be a non-negative integer, got %v", in.Index)
	}
	return int(in.Index), nil
}

func formatTab(t Tab) string {
	current := ""
	if t.Current {
		current = "(current)"
	}
	return fmt.Sprintf("[%d] %s - %s %s", t.Index, t.Title, t.URL, current)
}

func formatSnapshot(snap *PageSnapshot) string {
	url, title := snap.URL, snap.Title
	if url == "" {
		url = "N/A"
	}
	if title == "" {
		title = "N/A"
	}

	tabs := "None"
	if len(snap.Tabs) > 0 {
		lines := make([]string, len(snap.Tabs))
		for i, t := range snap.Tabs {
			lines[i] = "- " + formatTab(t)
		}
		tabs = strings.Join(lines, "\n")
	}

	console := "None"
	if len(snap.ConsoleMessages) > 0 {
		lines := make([]string, len(snap.ConsoleMessages))
		for i, m := range snap.ConsoleMessages {
			lines[i] = fmt.Sprintf("- [%s] %s", m.Level, m.Text)
		}
		console = strings.Join(lines, "\n")
	}

	return fmt.Sprintf("### Page Snapshot\n\n**URL**: %s\n**Title**: %s\n\n**Tabs**:\n%s\n\n**Recent Console Messages**:\n%s",
		url, title, tabs, console)
}
