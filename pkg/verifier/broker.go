package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getpactd/pactd/pkg/pact"
)

// ConsumerVersionSelector narrows which consumer pacts a broker serves
// for verification. The zero value selects nothing; set the fields the
// broker should filter on.
type ConsumerVersionSelector struct {
	MainBranch          bool   `json:"mainBranch,omitempty"`
	Branch              string `json:"branch,omitempty"`
	MatchingBranch      bool   `json:"matchingBranch,omitempty"`
	Tag                 string `json:"tag,omitempty"`
	FallbackTag         string `json:"fallbackTag,omitempty"`
	Latest              bool   `json:"latest,omitempty"`
	DeployedOrReleased  bool   `json:"deployedOrReleased,omitempty"`
	Deployed            bool   `json:"deployed,omitempty"`
	Released            bool   `json:"released,omitempty"`
	Environment         string `json:"environment,omitempty"`
	Consumer            string `json:"consumer,omitempty"`
}

// BrokerSource fetches the pacts a broker holds for a provider, using
// the pacts-for-verification HAL flow.
type BrokerSource struct {
	BaseURL  string
	Provider string
	Auth     Auth

	Selectors             []ConsumerVersionSelector
	ConsumerVersionTags   []string
	ProviderVersionBranch string
	IncludePending        bool
	IncludeWIPSince       string
}

func (s BrokerSource) Describe() string {
	return fmt.Sprintf("broker %s (provider %s)", s.BaseURL, s.Provider)
}

// halDocument is the subset of HAL we navigate.
type halDocument struct {
	Links    map[string]halLink `json:"_links"`
	Embedded struct {
		Pacts []struct {
			Links struct {
				Self halLink `json:"self"`
			} `json:"_links"`
			VerificationProperties struct {
				Pending bool `json:"pending"`
				Notices []struct {
					Text string `json:"text"`
				} `json:"notices"`
			} `json:"verificationProperties"`
		} `json:"pacts"`
	} `json:"_embedded"`
}

type halLink struct {
	HRef      string `json:"href"`
	Templated bool   `json:"templated"`
}

func (s BrokerSource) Load(ctx context.Context, client *http.Client) ([]LoadedPact, error) {
	if err := s.Auth.check(); err != nil {
		return nil, err
	}

	root, err := s.getHAL(ctx, client, strings.TrimSuffix(s.BaseURL, "/")+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to read broker index: %w", err)
	}

	link, ok := root.Links["pb:provider-pacts-for-verification"]
	if !ok {
		return nil, fmt.Errorf("broker at %s does not support pacts-for-verification", s.BaseURL)
	}
	providerURL := expandTemplate(link.HRef, map[string]string{"provider": s.Provider})

	payload := map[string]any{}
	if len(s.Selectors) > 0 {
		payload["consumerVersionSelectors"] = s.Selectors
	}
	if len(s.ConsumerVersionTags) > 0 {
		payload["consumerVersionTags"] = s.ConsumerVersionTags
	}
	if s.ProviderVersionBranch != "" {
		payload["providerVersionBranch"] = s.ProviderVersionBranch
	}
	if s.IncludePending {
		payload["includePendingStatus"] = true
	}
	if s.IncludeWIPSince != "" {
		payload["includeWipPactsSince"] = s.IncludeWIPSince
	}

	listing, err := s.postHAL(ctx, client, providerURL, payload)
	if err != nil {
		return nil, fmt.Errorf("pacts-for-verification request failed: %w", err)
	}

	var loaded []LoadedPact
	for _, entry := range listing.Embedded.Pacts {
		lp, err := s.fetchPact(ctx, client, entry.Links.Self.HRef)
		if err != nil {
			return nil, err
		}
		lp.Pending = entry.VerificationProperties.Pending
		for _, notice := range entry.VerificationProperties.Notices {
			lp.Notices = append(lp.Notices, notice.Text)
		}
		loaded = append(loaded, *lp)
	}
	return loaded, nil
}

func (s BrokerSource) fetchPact(ctx context.Context, client *http.Client, url string) (*LoadedPact, error) {
	data, err := s.get(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pact %s: %w", url, err)
	}

	// The pact document carries its own HAL links, including where
	// verification results publish to.
	var links struct {
		Links map[string]halLink `json:"_links"`
	}
	_ = json.Unmarshal(data, &links)

	p, err := pact.Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}

	lp := &LoadedPact{
		Pact:          p,
		Source:        url,
		BrokerBaseURL: s.BaseURL,
	}
	if publish, ok := links.Links["pb:publish-verification-results"]; ok {
		lp.PublishURL = publish.HRef
	}
	return lp, nil
}

func (s BrokerSource) getHAL(ctx context.Context, client *http.Client, url string) (*halDocument, error) {
	data, err := s.get(ctx, client, url)
	if err != nil {
		return nil, err
	}
	var doc halDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid HAL document from %s: %w", url, err)
	}
	return &doc, nil
}

func (s BrokerSource) postHAL(ctx context.Context, client *http.Client, url string, payload any) (*halDocument, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/hal+json")
	s.Auth.apply(req)

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status %d", url, res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var doc halDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid HAL document from %s: %w", url, err)
	}
	return &doc, nil
}

func (s BrokerSource) get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
	s.Auth.apply(req)

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// expandTemplate substitutes {name} placeholders in a templated HAL
// link.
func expandTemplate(href string, values map[string]string) string {
	for name, value := range values {
		href = strings.ReplaceAll(href, "{"+name+"}", value)
	}
	return href
}

// publishPayload is the verification-results document posted back to
// the broker.
type publishPayload struct {
	Success                    bool                `json:"success"`
	ProviderApplicationVersion string              `json:"providerApplicationVersion"`
	ProviderTags               []string            `json:"providerTags,omitempty"`
	ProviderBranch             string              `json:"providerBranch,omitempty"`
	BuildURL                   string              `json:"buildUrl,omitempty"`
	VerifiedBy                 map[string]string   `json:"verifiedBy"`
	TestResults                []publishTestResult `json:"testResults"`
}

type publishTestResult struct {
	InteractionID string `json:"interactionId,omitempty"`
	Success       bool   `json:"success"`
	MismatchCount int    `json:"mismatches,omitempty"`
}

// publishResults posts a pact's verification results to its publish
// link. Failures are non-fatal for the run.
func publishResults(ctx context.Context, client *http.Client, auth Auth, lp *LoadedPact, results []Result, opts *Options) error {
	if lp.PublishURL == "" {
		return fmt.Errorf("pact from %s has no publish link", lp.Source)
	}

	payload := publishPayload{
		Success:                    true,
		ProviderApplicationVersion: opts.ProviderVersion,
		ProviderTags:               opts.ProviderTags,
		ProviderBranch:             opts.ProviderBranch,
		BuildURL:                   opts.BuildURL,
		VerifiedBy: map[string]string{
			"implementation": "pactd",
			"version":        opts.toolVersion(),
		},
	}
	for _, r := range results {
		if !r.OK() && !r.Pending {
			payload.Success = false
		}
		payload.TestResults = append(payload.TestResults, publishTestResult{
			InteractionID: r.InteractionKey,
			Success:       r.OK(),
			MismatchCount: len(r.Mismatches),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lp.PublishURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	auth.apply(req)

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish verification results: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("broker rejected verification results with status %d", res.StatusCode)
	}
	return nil
}
