package stylesheet

import "errors"

var errNoFetcher = errors.New("no fetcher configured")
