package endorse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"scholar-seeker-ai/lib/browser"
	"scholar-seeker-ai/lib/browser/browsertest"

	"github.com/stretchr/testify/require"
)

const endorsersUrl = "https://arxiv.org/auth/show-endorsers/2401.00001"

func TestFetchReturnsPage(t *testing.T) {
	fake := browsertest.NewFake()
	fake.Pages[endorsersUrl] = browser.Page{
		Title: "Endorsers for arXiv:2401.00001",
		Body:  []byte("<html><body><table></table></body></html>"),
	}

	page, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(context.Background(), "2401.00001")
	require.NoError(t, err)
	require.NotEmpty(t, page.Body)
}

func TestFetchClassifiesNotFound(t *testing.T) {
	fake := browsertest.NewFake()
	fake.Pages[endorsersUrl] = browser.Page{
		Title: "Article not found",
		Body:  []byte("<html></html>"),
	}

	_, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(context.Background(), "2401.00001")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, NotFound, fetchErr.Kind)
	require.Equal(t, "2401.00001", fetchErr.PaperId)
}

func TestFetchClassifiesUnauthorizedByTitle(t *testing.T) {
	fake := browsertest.NewFake()
	fake.Pages[endorsersUrl] = browser.Page{
		Title: "Log in to arXiv.org",
		Body:  []byte("<html></html>"),
	}

	_, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(context.Background(), "2401.00001")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, Unauthorized, fetchErr.Kind)
}

func TestFetchClassifiesUnauthorizedByRedirect(t *testing.T) {
	fake := browsertest.NewFake()
	fake.Pages[endorsersUrl] = browser.Page{
		URL:   "https://arxiv.org/login?next_page=/auth/show-endorsers/2401.00001",
		Title: "arXiv.org",
		Body:  []byte("<html></html>"),
	}

	_, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(context.Background(), "2401.00001")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, Unauthorized, fetchErr.Kind)
}

func TestFetchClassifiesTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	fake := browsertest.NewFake()
	_, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(ctx, "2401.00001")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, Timeout, fetchErr.Kind)
}

func TestFetchClassifiesUnknown(t *testing.T) {
	fake := browsertest.NewFake()
	fake.NavigateErrs[endorsersUrl] = fmt.Errorf("connection reset by peer")

	_, err := NewFetcher(fake, DefaultFetchConfig()).Fetch(context.Background(), "2401.00001")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, Unknown, fetchErr.Kind)
}
