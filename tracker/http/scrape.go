package httpTracker

import (
	"net/url"
	"path"
	"strings"

	"github.com/anacrolix/missinggo/httptoo"
	"github.com/anacrolix/torrent/types/infohash"

	"github.com/anacrolix/trackerclient/tracker/shared"
)

// Derives the scrape URL for an announce URL by the convention in BEP 48: the last path element
// must start with "announce", which is replaced with "scrape". Responses aren't decoded by this
// package.
func ScrapeURL(announce *url.URL, ihs []infohash.T) (*url.URL, error) {
	dir, last := path.Split(announce.Path)
	if !strings.HasPrefix(last, "announce") {
		return nil, shared.ErrScrapeUnsupported
	}
	ret := httptoo.CopyURL(announce)
	ret.Path = dir + "scrape" + strings.TrimPrefix(last, "announce")
	ret.RawPath = ""
	query := ret.Query()
	for _, ih := range ihs {
		query.Add("info_hash", ih.AsString())
	}
	ret.RawQuery = strings.ReplaceAll(query.Encode(), "+", "%20")
	return ret, nil
}

func (cl Client) ScrapeURL(ihs []infohash.T) (*url.URL, error) {
	return ScrapeURL(cl.url_, ihs)
}
