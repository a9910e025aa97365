package rod

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
)

var _ output.BrowserPort = (*Adapter)(nil)

// Adapter drives one headless page per session through rod. Not safe for
// concurrent use; the orchestrator serializes access.
type Adapter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration
	log      output.LoggerPort
}

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
}

func DefaultConfig() Config {
	return Config{
		Headless:   true,
		SlowMotion: 100 * time.Millisecond,
		Timeout:    10 * time.Second,
		NoSandbox:  true,
	}
}

func New(ctx context.Context, cfg Config, log output.LoggerPort) (*Adapter, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(cfg.SlowMotion).
		Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &Adapter{
		browser:  browser,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
		log:      log.WithField("component", "browser"),
	}, nil
}

func (a *Adapter) Navigate(ctx context.Context, url string) error {
	page := a.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	page.WaitIdle(5 * time.Second)
	return nil
}

func (a *Adapter) Fill(ctx context.Context, selector, text string) error {
	el, err := a.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("field not found: %s: %w", selector, err)
	}

	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}
	return nil
}

func (a *Adapter) SelectOption(ctx context.Context, selector, value string) error {
	el, err := a.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("select not found: %s: %w", selector, err)
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("option %q not selectable: %w", value, err)
	}
	return nil
}

func (a *Adapter) Click(ctx context.Context, selector string) error {
	el, err := a.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	a.page.Context(ctx).WaitIdle(2 * time.Second)
	return nil
}

// Snapshot analyzes the current page in one pass. Element probes and the
// screenshot are best-effort; URL, title and HTML are not.
func (a *Adapter) Snapshot(ctx context.Context) (*entity.PageState, error) {
	page := a.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}

	body, err := page.Timeout(a.timeout).Element("body")
	if err != nil {
		return nil, fmt.Errorf("body not found: %w", err)
	}
	rawHTML, err := body.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}
	cleaned := cleanHTML(rawHTML, defaultMaxHTMLSize)

	elements := a.collectElements(ctx)

	shot, err := a.screenshot(ctx)
	if err != nil {
		a.log.Warn("screenshot failed", "error", err)
		shot = nil
	}

	return &entity.PageState{
		URL:        info.URL,
		Title:      info.Title,
		Kind:       entity.ClassifyPageKind(cleaned, elements),
		Elements:   elements,
		Screenshot: shot,
		HTML:       cleaned,
	}, nil
}

func (a *Adapter) CurrentURL() string {
	info, err := a.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (a *Adapter) Close() {
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher.Cleanup()
	}
}

func (a *Adapter) element(ctx context.Context, selector string) (*rod.Element, error) {
	page := a.page.Context(ctx).Timeout(a.timeout)
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		return page.ElementX(selector)
	}
	return page.Element(selector)
}

func (a *Adapter) screenshot(ctx context.Context) ([]byte, error) {
	imgBytes, err := a.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	if img.Bounds().Dx() > 1024 {
		img = imaging.Resize(img, 1024, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
