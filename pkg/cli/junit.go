package cli

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/getpactd/pactd/pkg/verifier"
)

// JUnit report shapes, minimal but enough for CI ingestion.
type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
	Skipped   *struct{}     `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

func writeJUnit(path string, summary *verifier.Summary) error {
	suite := junitTestSuite{Name: "pact-verification"}

	var total time.Duration
	for _, result := range summary.Results {
		total += result.Elapsed
		testCase := junitTestCase{
			Name:      result.Description,
			ClassName: fmt.Sprintf("%s -> %s", result.ConsumerName, result.ProviderName),
			Time:      fmt.Sprintf("%.3f", result.Elapsed.Seconds()),
		}

		switch {
		case result.OK():
		case result.Pending:
			testCase.Skipped = &struct{}{}
		case result.Outcome == verifier.OutcomeError:
			suite.Errors++
			testCase.Error = &junitFailure{Message: result.ErrorMessage}
		default:
			suite.Failures++
			body := ""
			for _, mismatch := range result.Mismatches {
				body += mismatch.String() + "\n"
			}
			testCase.Failure = &junitFailure{
				Message: fmt.Sprintf("%d mismatch(es)", len(result.Mismatches)),
				Body:    body,
			}
		}

		suite.Cases = append(suite.Cases, testCase)
	}
	suite.Tests = len(suite.Cases)
	suite.Time = fmt.Sprintf("%.3f", total.Seconds())

	data, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}
