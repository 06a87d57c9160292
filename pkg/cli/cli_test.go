package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpactd/pactd/pkg/pact"
)

func writeTestPact(t *testing.T) string {
	t.Helper()
	p := pact.New("web-app", "user-service", pact.V3)
	body, err := pact.JSONBody(map[string]any{"id": 1})
	require.NoError(t, err)
	require.NoError(t, p.AddInteraction(&pact.Interaction{
		Description: "a request for a user",
		Request: &pact.Request{
			Method:  "GET",
			Path:    "/users/1",
			Headers: pact.Headers{},
			Query:   pact.QueryValues{},
		},
		Response: &pact.Response{
			Status:  200,
			Headers: pact.Headers{"Content-Type": {"application/json"}},
			Body:    body,
		},
	}))
	path, err := pact.WriteFile(p, t.TempDir())
	require.NoError(t, err)
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pactd")
}

func TestValidateCommand(t *testing.T) {
	path := writeTestPact(t)
	out, err := runCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestValidateRejectsBadPact(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"provider": {"name": "p"}}`), 0o644))

	out, err := runCommand(t, "validate", bad)
	assert.Error(t, err)
	assert.Contains(t, out, bad)
}

func TestVerifyCommandSuccess(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer provider.Close()

	path := writeTestPact(t)
	hostPort := strings.TrimPrefix(provider.URL, "http://")
	host, port, ok := strings.Cut(hostPort, ":")
	require.True(t, ok)

	t.Setenv("PACTD_CACHE_DIR", t.TempDir())
	out, err := runCommand(t,
		"verify",
		"--file", path,
		"--hostname", host,
		"--port", port,
		"--no-colour",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "OK a request for a user")
	assert.Contains(t, out, "1 passed, 0 failed, 0 pending")
}

func TestVerifyCommandFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer provider.Close()

	path := writeTestPact(t)
	hostPort := strings.TrimPrefix(provider.URL, "http://")
	host, port, _ := strings.Cut(hostPort, ":")

	t.Setenv("PACTD_CACHE_DIR", t.TempDir())
	jsonOut := filepath.Join(t.TempDir(), "results.json")
	out, err := runCommand(t,
		"verify",
		"--file", path,
		"--hostname", host,
		"--port", port,
		"--no-colour",
		"--json", jsonOut,
	)
	assert.Error(t, err)
	assert.Contains(t, out, "FAILED a request for a user")

	data, readErr := os.ReadFile(jsonOut)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `"result": false`)
}

func TestVerifyRequiresSources(t *testing.T) {
	_, err := runCommand(t, "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pact sources")
}

func TestBrokerURLRequiresProviderName(t *testing.T) {
	_, err := runCommand(t, "verify", "--broker-url", "https://broker.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--provider-name")
}

func TestEnvAliases(t *testing.T) {
	assert.Equal(t, "PACTD_BROKER_URL", envName("broker-url"))
	assert.Equal(t, "PACTD_STATE_CHANGE_URL", envName("state-change-url"))

	t.Setenv("PACTD_PROVIDER_NAME", "from-env")
	root := NewRootCmd()
	verifyCmd, _, err := root.Find([]string{"verify"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", stringFlagOrEnv(verifyCmd, "provider-name"))
}
