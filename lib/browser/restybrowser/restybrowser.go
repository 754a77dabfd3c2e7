// Package restybrowser implements browser.Browser over a plain HTTP
// client. The remote service serves complete documents without
// client-side rendering, so a cookie-carrying HTTP client with a
// desktop user agent is equivalent to a real browser session for every
// page this project reads.
package restybrowser

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"scholar-seeker-ai/lib/browser"
	"scholar-seeker-ai/lib/htmlutil"
	"scholar-seeker-ai/lib/restyutil"
	"scholar-seeker-ai/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Browser struct {
	baseUrl *url.URL
	http    *resty.Client
	jar     http.CookieJar
}

type Options struct {
	BaseUrl string
	// bounds every navigation, zero means 30 seconds
	Timeout time.Duration
	// optional resty message dump target, enabled at debug log level
	InstrumentOutput restyutil.InstrumentOutput
}

func New(ctx context.Context, opts Options) (*Browser, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "browser/resty")
	restyutil.InstrumentClient(client, nil, opts.InstrumentOutput)

	b := &Browser{
		baseUrl: baseUrl,
		http:    client,
		jar:     jar,
	}
	return b, nil
}

func pageFromResponse(res *resty.Response) browser.Page {
	page := browser.Page{
		URL:  res.Request.URL,
		Body: res.Body(),
	}
	if res.RawResponse != nil {
		if loc, err := res.RawResponse.Location(); err == nil {
			page.URL = loc.String()
		} else if res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
			page.URL = res.RawResponse.Request.URL.String()
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err == nil {
		page.Title = htmlutil.CleanText(doc.Find("title").First().Text())
	}
	return page
}

func (b *Browser) Navigate(ctx context.Context, link string) (browser.Page, error) {
	res, err := b.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return browser.Page{}, err
	}
	return pageFromResponse(res), nil
}

func (b *Browser) SubmitForm(ctx context.Context, action string, fields url.Values) (browser.Page, error) {
	form := map[string]string{}
	for k := range fields {
		form[k] = fields.Get(k)
	}

	res, err := b.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(action)
	if err != nil {
		return browser.Page{}, err
	}
	return pageFromResponse(res), nil
}

func (b *Browser) Cookies(u *url.URL) []*http.Cookie {
	return b.jar.Cookies(u)
}

func (b *Browser) SetCookies(u *url.URL, cookies []*http.Cookie) {
	b.jar.SetCookies(u, cookies)
}
