package careersite

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"

	"job-signals/models"
	"job-signals/scraper"
	"job-signals/utils"
)

const sourceName = "careersite"

// pathHints mark an anchor as pointing at a single posting.
var pathHints = []string{
	"/job/", "/jobs/", "/careers/", "/career/", "/positions/", "/position/",
	"/openings/", "/opening/", "/vacancies/", "/vacancy/", "/postings/",
	"gh_jid=", "jobs.lever.co/", "boards.greenhouse.io/", "myworkdayjobs.com/",
}

// junkTitles are navigation anchors that share a posting-like path.
var junkTitles = []string{
	"view all", "see all", "all jobs", "apply", "search jobs", "back to", "learn more", "next", "previous",
}

// Scraper renders an entity's careers page in headless Chrome and lifts
// posting links out of the resulting DOM.
type Scraper struct {
	logger    *utils.Logger
	chromeBin string
	settle    time.Duration
	retry     *utils.RetryConfig
}

// New creates a careers page Scraper. chromeBin may be empty to auto-detect.
func New(chromeBin string, maxRetries int, logger *utils.Logger) *Scraper {
	return &Scraper{
		logger:    logger,
		chromeBin: chromeBin,
		settle:    4 * time.Second,
		retry: &utils.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

func (s *Scraper) Name() string { return sourceName }

// Fetch loads entity.CareersURL and returns up to p.MaxJobs postings found on it.
// Postings carry no upstream id, so identity falls back to the posting URL.
func (s *Scraper) Fetch(ctx context.Context, entity models.Entity, p scraper.FetchParams) ([]models.RawJob, error) {
	if entity.CareersURL == "" {
		return nil, errors.WithHint(
			errors.Newf("careersite: %q has no careers_url", entity.Name),
			"list entities in a YAML file with a careers_url per entry")
	}

	html, err := s.render(ctx, entity.CareersURL)
	if err != nil {
		return nil, err
	}

	jobs, err := ParseListings(entity.Name, entity.CareersURL, html)
	if err != nil {
		return nil, err
	}
	if p.MaxJobs > 0 && len(jobs) > p.MaxJobs {
		jobs = jobs[:p.MaxJobs]
	}

	s.logger.Debug("[careersite] %s: %d postings on %s", entity.Name, len(jobs), entity.CareersURL)
	return jobs, nil
}

func (s *Scraper) render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if bin := findChromeBinary(s.chromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var html string
	err := s.retry.Do(ctx, "render "+pageURL, func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 90*time.Second)
		defer cancelTimeout()

		return chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(s.settle),
			// lazy lists often load on scroll
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(s.settle/2),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	if err != nil {
		return "", errors.Wrapf(err, "careersite: render %s", pageURL)
	}
	return html, nil
}

// ParseListings extracts posting anchors from a rendered careers page.
// Relative links are resolved against pageURL; each URL is returned once.
func ParseListings(organization, pageURL, html string) ([]models.RawJob, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.Wrapf(err, "careersite: bad page url %q", pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "careersite: parse html")
	}

	seen := utils.NewURLSet()
	seen.Add(base.String())

	var jobs []models.RawJob
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || ref.Scheme == "mailto" || ref.Scheme == "javascript" {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		link := abs.String()

		title := cleanText(a.Text())
		if title == "" {
			title = cleanText(a.AttrOr("aria-label", ""))
		}
		if !looksLikePosting(link, title) || !seen.Add(link) {
			return
		}

		card := a.Closest("li, tr, article, [role='listitem'], div")
		job := models.RawJob{
			URL:          link,
			Title:        title,
			Organization: organization,
			Source:       sourceName,
			SourceDomain: abs.Hostname(),
			SourceType:   "html",
		}
		if loc := findLocation(card); loc != "" {
			job.Locations = []models.LocationCandidate{{City: loc}}
		}
		if dt, ok := card.Find("time[datetime]").First().Attr("datetime"); ok {
			job.DatePosted = dt
		}
		jobs = append(jobs, job)
	})
	return jobs, nil
}

func looksLikePosting(link, title string) bool {
	if title == "" || len(title) > 200 {
		return false
	}
	low := strings.ToLower(title)
	for _, j := range junkTitles {
		if strings.HasPrefix(low, j) {
			return false
		}
	}
	l := strings.ToLower(link)
	for _, h := range pathHints {
		if strings.Contains(l, h) {
			// a bare listing index such as /jobs/ is not a posting
			return !strings.HasSuffix(l, strings.TrimSuffix(h, "/")) && !strings.HasSuffix(l, h)
		}
	}
	return false
}

func findLocation(card *goquery.Selection) string {
	for _, sel := range []string{
		"[data-testid='job-location']",
		"[data-testid='location']",
		"[class*='location']",
		"[class*='Location']",
	} {
		if t := cleanText(card.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary(override string) string {
	if override != "" {
		return override
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
