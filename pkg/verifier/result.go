// Package verifier replays recorded pact interactions against a real
// provider and grades the responses with the matcher kernel.
package verifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getpactd/pactd/internal/matching"
)

// Outcome classifies a single interaction verification.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeMismatches Outcome = "mismatches"
	OutcomeError      Outcome = "error"
)

// Result is the verification result of one interaction.
type Result struct {
	InteractionKey string              `json:"interactionId,omitempty"`
	Description    string              `json:"interaction"`
	ConsumerName   string              `json:"consumer"`
	ProviderName   string              `json:"provider"`
	Outcome        Outcome             `json:"outcome"`
	Mismatches     []matching.Mismatch `json:"mismatches,omitempty"`
	ErrorMessage   string              `json:"error,omitempty"`
	Elapsed        time.Duration       `json:"elapsedNs"`
	Pending        bool                `json:"pending"`
	Published      bool                `json:"published"`
}

// OK reports whether the interaction verified cleanly.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Summary is the aggregate of a verification run.
type Summary struct {
	Results []Result
}

// Failed reports whether the run fails: any non-pending interaction
// with mismatches or an error. Pending failures never fail the run.
func (s *Summary) Failed() bool {
	for _, r := range s.Results {
		if !r.OK() && !r.Pending {
			return true
		}
	}
	return false
}

// resultsDocument is the §6.4 results JSON shape.
type resultsDocument struct {
	Result        bool          `json:"result"`
	Output        []string      `json:"output"`
	Errors        []resultError `json:"errors"`
	PendingErrors []resultError `json:"pendingErrors,omitempty"`
}

type resultError struct {
	Interaction string         `json:"interaction"`
	Mismatch    resultMismatch `json:"mismatch"`
}

type resultMismatch struct {
	Type          string              `json:"type"`
	Message       string              `json:"message,omitempty"`
	InteractionID string              `json:"interactionId,omitempty"`
	Mismatches    []matching.Mismatch `json:"mismatches,omitempty"`
}

// ResultsJSON renders the run in the documented results schema.
func (s *Summary) ResultsJSON() ([]byte, error) {
	doc := resultsDocument{
		Result: !s.Failed(),
		Output: []string{},
		Errors: []resultError{},
	}

	for _, r := range s.Results {
		line := fmt.Sprintf("%s ... %s", r.Description, r.Outcome)
		doc.Output = append(doc.Output, line)

		if r.OK() {
			continue
		}

		entry := resultError{Interaction: r.Description}
		switch r.Outcome {
		case OutcomeMismatches:
			entry.Mismatch = resultMismatch{
				Type:          "mismatches",
				InteractionID: r.InteractionKey,
				Mismatches:    r.Mismatches,
			}
		case OutcomeError:
			entry.Mismatch = resultMismatch{
				Type:          "error",
				Message:       r.ErrorMessage,
				InteractionID: r.InteractionKey,
			}
		}

		if r.Pending {
			doc.PendingErrors = append(doc.PendingErrors, entry)
		} else {
			doc.Errors = append(doc.Errors, entry)
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}

// lastFailedFile is the cache of failed interaction keys kept between
// runs for --last-failed.
const lastFailedFile = "last-failed.json"

// LastFailedPath returns the cache location under baseDir (defaulting
// to .pactd in the working directory).
func LastFailedPath(baseDir string) string {
	if baseDir == "" {
		baseDir = ".pactd"
	}
	return filepath.Join(baseDir, lastFailedFile)
}

// SaveLastFailed persists the keys of failed, non-pending interactions.
func (s *Summary) SaveLastFailed(path string) error {
	var keys []string
	for _, r := range s.Results {
		if !r.OK() && !r.Pending && r.InteractionKey != "" {
			keys = append(keys, r.InteractionKey)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadLastFailed reads the failed-interaction cache. A missing file
// yields an empty set.
func LoadLastFailed(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("invalid last-failed cache: %w", err)
	}
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}
