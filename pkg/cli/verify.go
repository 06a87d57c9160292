package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/verifier"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a provider against recorded pacts",
		Long: `Load pacts from files, directories, URLs or a pact broker, replay each
interaction against the provider, and report the results. String and
boolean flags have an environment variable alias prefixed with PACTD_,
for example PACTD_BROKER_URL. The list and numeric flags (--file,
--dir, --url, --header, --filter-consumer, --provider-tags,
--consumer-version-tags, --transports, --port, --request-timeout) are
read from the command line only.`,
		RunE: runVerify,
	}

	flags := cmd.Flags()

	// Loading.
	flags.StringSlice("file", nil, "pact file to verify")
	flags.StringSlice("dir", nil, "directory of pact files to verify")
	flags.StringSlice("url", nil, "URL of a pact to verify")
	flags.String("broker-url", "", "pact broker base URL")
	flags.String("webhook-callback-url", "", "URL of a single changed pact from a broker webhook")
	flags.Bool("ignore-no-pacts-error", false, "treat an empty pact list as a warning, not an error")

	// Auth.
	flags.String("user", "", "basic auth username for pact sources")
	flags.String("password", "", "basic auth password for pact sources")
	flags.String("token", "", "bearer token for pact sources")

	// Provider.
	flags.String("hostname", "localhost", "provider hostname")
	flags.Int("port", 8080, "provider port")
	flags.String("transport", "http", "provider transport (http or https)")
	flags.String("provider-name", "", "name of the provider being verified")
	flags.String("base-path", "", "base path prepended to interaction paths")
	flags.Uint64("request-timeout", 5000, "timeout in milliseconds for provider and broker calls")
	flags.StringSlice("header", nil, "custom header added to every replayed request (K=V)")
	flags.Bool("disable-ssl-verification", false, "skip TLS certificate verification")

	// State changes.
	flags.String("state-change-url", "", "provider state change callback URL")
	flags.Bool("state-change-as-query", false, "send state change parameters as query instead of a JSON body")
	flags.Bool("state-change-teardown", false, "call the state change URL with action=teardown after each interaction")

	// Filtering.
	flags.String("filter-description", "", "only verify interactions whose description matches this regex")
	flags.String("filter-state", "", "only verify interactions whose provider state matches this regex")
	flags.Bool("filter-no-state", false, "only verify interactions that have no provider state")
	flags.StringSlice("filter-consumer", nil, "only verify pacts for these consumers")

	// Publishing.
	flags.Bool("publish", false, "publish verification results to the broker")
	flags.String("provider-version", "", "provider application version for publishing")
	flags.String("build-url", "", "CI build URL included with published results")
	flags.StringSlice("provider-tags", nil, "provider version tags for publishing")
	flags.String("provider-branch", "", "provider version branch for publishing")

	// Broker selectors.
	flags.StringSlice("consumer-version-tags", nil, "consumer version tags to fetch from the broker")
	flags.String("consumer-version-selectors", "", "consumer version selectors as a JSON array")
	flags.Bool("enable-pending", false, "enable pending pact semantics")
	flags.String("include-wip-pacts-since", "", "include WIP pacts created after this date")

	flags.StringSlice("transports", nil, "additional provider transports as NAME:PORT pairs (accepted, not used by verification)")

	// Reporting.
	flags.String("json", "", "write the verification results JSON to this file")
	flags.String("junit", "", "write a JUnit XML report to this file")
	flags.Bool("no-colour", false, "disable ANSI colour output")

	// Development.
	flags.Bool("exit-on-first-error", false, "stop at the first non-pending failure")
	flags.Bool("last-failed", false, "only verify the interactions that failed last run")

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	logCfg := loggerFromFlags(cmd)
	log := logging.New(logging.Config{Level: logCfg.level, Format: logCfg.format})

	auth := verifier.Auth{
		Username: stringFlagOrEnv(cmd, "user"),
		Password: stringFlagOrEnv(cmd, "password"),
		Token:    stringFlagOrEnv(cmd, "token"),
	}

	sources, err := buildSources(cmd, auth)
	if err != nil {
		return err
	}

	timeoutMs, _ := cmd.Flags().GetUint64("request-timeout")

	headers := map[string]string{}
	headerFlags, _ := cmd.Flags().GetStringSlice("header")
	for _, h := range headerFlags {
		key, value, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("invalid --header %q, expected K=V", h)
		}
		headers[key] = value
	}

	consumers, _ := cmd.Flags().GetStringSlice("filter-consumer")
	providerTags, _ := cmd.Flags().GetStringSlice("provider-tags")

	opts := verifier.Options{
		ProviderName:           stringFlagOrEnv(cmd, "provider-name"),
		BaseURL:                providerBaseURL(cmd),
		RequestTimeout:         time.Duration(timeoutMs) * time.Millisecond,
		CustomHeaders:          headers,
		DisableSSLVerification: boolFlagOrEnv(cmd, "disable-ssl-verification"),
		StateChangeURL:         stringFlagOrEnv(cmd, "state-change-url"),
		StateChangeAsQuery:     boolFlagOrEnv(cmd, "state-change-as-query"),
		StateChangeTeardown:    boolFlagOrEnv(cmd, "state-change-teardown"),
		StateChangeRetries:     3,
		FilterDescription:      stringFlagOrEnv(cmd, "filter-description"),
		FilterState:            stringFlagOrEnv(cmd, "filter-state"),
		FilterNoState:          boolFlagOrEnv(cmd, "filter-no-state"),
		FilterConsumers:        consumers,
		LastFailedOnly:         boolFlagOrEnv(cmd, "last-failed"),
		LastFailedDir:          cacheDir(),
		Publish:                boolFlagOrEnv(cmd, "publish"),
		ProviderVersion:        stringFlagOrEnv(cmd, "provider-version"),
		ProviderTags:           providerTags,
		ProviderBranch:         stringFlagOrEnv(cmd, "provider-branch"),
		BuildURL:               stringFlagOrEnv(cmd, "build-url"),
		Auth:                   auth,
		ExitOnFirstError:       boolFlagOrEnv(cmd, "exit-on-first-error"),
		IgnoreNoPacts:          boolFlagOrEnv(cmd, "ignore-no-pacts-error"),
		Log:                    log,
	}

	v := verifier.New(opts, sources...)
	summary, err := v.Verify(cmd.Context())
	if err != nil {
		return err
	}

	reporter := newReporter(cmd.OutOrStdout(), boolFlagOrEnv(cmd, "no-colour"))
	reporter.printSummary(summary)

	if jsonPath := stringFlagOrEnv(cmd, "json"); jsonPath != "" {
		doc, err := summary.ResultsJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, doc, 0o644); err != nil {
			return fmt.Errorf("failed to write results JSON: %w", err)
		}
	}
	if junitPath := stringFlagOrEnv(cmd, "junit"); junitPath != "" {
		if err := writeJUnit(junitPath, summary); err != nil {
			return fmt.Errorf("failed to write JUnit report: %w", err)
		}
	}

	if summary.Failed() {
		return fmt.Errorf("verification failed")
	}
	return nil
}

// cacheDir is where the last-failed interaction cache lives. It is
// overridable for sandboxed runs and CI.
func cacheDir() string {
	if dir := os.Getenv("PACTD_CACHE_DIR"); dir != "" {
		return dir
	}
	return ".pactd"
}

func providerBaseURL(cmd *cobra.Command) string {
	transport := stringFlagOrEnv(cmd, "transport")
	hostname := stringFlagOrEnv(cmd, "hostname")
	port, _ := cmd.Flags().GetInt("port")
	basePath := strings.TrimSuffix(stringFlagOrEnv(cmd, "base-path"), "/")
	return fmt.Sprintf("%s://%s:%d%s", transport, hostname, port, basePath)
}

func buildSources(cmd *cobra.Command, auth verifier.Auth) ([]verifier.Source, error) {
	var sources []verifier.Source

	files, _ := cmd.Flags().GetStringSlice("file")
	for _, f := range files {
		sources = append(sources, verifier.FileSource{Path: f})
	}

	dirs, _ := cmd.Flags().GetStringSlice("dir")
	for _, d := range dirs {
		sources = append(sources, verifier.DirSource{Dir: d})
	}

	urls, _ := cmd.Flags().GetStringSlice("url")
	for _, u := range urls {
		sources = append(sources, verifier.URLSource{URL: u, Auth: auth})
	}
	if webhook := stringFlagOrEnv(cmd, "webhook-callback-url"); webhook != "" {
		sources = append(sources, verifier.URLSource{URL: webhook, Auth: auth})
	}

	if brokerURL := stringFlagOrEnv(cmd, "broker-url"); brokerURL != "" {
		provider := stringFlagOrEnv(cmd, "provider-name")
		if provider == "" {
			return nil, fmt.Errorf("--broker-url requires --provider-name")
		}

		var selectors []verifier.ConsumerVersionSelector
		if raw := stringFlagOrEnv(cmd, "consumer-version-selectors"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &selectors); err != nil {
				return nil, fmt.Errorf("invalid --consumer-version-selectors: %w", err)
			}
		}
		tags, _ := cmd.Flags().GetStringSlice("consumer-version-tags")

		sources = append(sources, verifier.BrokerSource{
			BaseURL:               brokerURL,
			Provider:              provider,
			Auth:                  auth,
			Selectors:             selectors,
			ConsumerVersionTags:   tags,
			ProviderVersionBranch: stringFlagOrEnv(cmd, "provider-branch"),
			IncludePending:        boolFlagOrEnv(cmd, "enable-pending"),
			IncludeWIPSince:       stringFlagOrEnv(cmd, "include-wip-pacts-since"),
		})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no pact sources given: use --file, --dir, --url or --broker-url")
	}
	return sources, nil
}
