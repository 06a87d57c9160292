package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getpactd/pactd/pkg/pact"
)

// ErrNoPacts is returned when no source yielded a pact to verify.
var ErrNoPacts = errors.New("no pacts were found to verify")

// LoadedPact couples a parsed pact with where it came from and its
// broker bookkeeping.
type LoadedPact struct {
	Pact   *pact.Pact
	Source string

	// Pending marks pacts the broker served under pending semantics.
	Pending bool

	// Notices are broker-supplied explanations shown with the results.
	Notices []string

	// PublishURL is the broker link verification results post to.
	PublishURL string

	// BrokerBaseURL rewrites MockServerURL generators in broker pacts.
	BrokerBaseURL string
}

// Source is anything that can produce pacts to verify.
type Source interface {
	// Describe names the source for logs and reports.
	Describe() string

	// Load fetches and parses the source's pacts.
	Load(ctx context.Context, client *http.Client) ([]LoadedPact, error)
}

// FileSource loads a single pact file.
type FileSource struct {
	Path string
}

func (s FileSource) Describe() string { return s.Path }

func (s FileSource) Load(_ context.Context, _ *http.Client) ([]LoadedPact, error) {
	p, err := pact.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return []LoadedPact{{Pact: p, Source: s.Path}}, nil
}

// DirSource loads every pact file under a directory, matched by glob.
type DirSource struct {
	Dir string

	// Glob defaults to "**/*.json".
	Glob string
}

func (s DirSource) Describe() string { return s.Dir }

func (s DirSource) Load(_ context.Context, _ *http.Client) ([]LoadedPact, error) {
	pattern := s.Glob
	if pattern == "" {
		pattern = "**/*.json"
	}

	matches, err := doublestar.Glob(os.DirFS(s.Dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pact glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	var loaded []LoadedPact
	for _, match := range matches {
		path := filepath.Join(s.Dir, match)
		p, err := pact.ReadFile(path)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, LoadedPact{Pact: p, Source: path})
	}
	return loaded, nil
}

// URLSource fetches one pact document over HTTP.
type URLSource struct {
	URL  string
	Auth Auth
}

func (s URLSource) Describe() string { return s.URL }

func (s URLSource) Load(ctx context.Context, client *http.Client) ([]LoadedPact, error) {
	if err := s.Auth.check(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
	s.Auth.apply(req)

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pact from %s: %w", s.URL, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching pact from %s returned status %d", s.URL, res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	p, err := pact.Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.URL, err)
	}
	return []LoadedPact{{Pact: p, Source: s.URL}}, nil
}
