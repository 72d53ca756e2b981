package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeWatsonx(t *testing.T, genStatus int) {
	t.Helper()
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "token_type": "Bearer", "expires_in": 3600,
		})
	}))
	t.Cleanup(iam.Close)

	ml := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if genStatus != http.StatusOK {
			http.Error(w, `{"errors":[{"message":"model not found"}]}`, genStatus)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text := "OK"
		if strings.Contains(body["input"].(string), "calculator") {
			text = strings.Repeat("x", 600)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_id": "ibm/granite-3-0-8b-instruct",
			"results": []map[string]any{{
				"generated_text":        text,
				"input_token_count":     42,
				"generated_token_count": 7,
				"stop_reason":           "max_tokens",
			}},
		})
	}))
	t.Cleanup(ml.Close)

	t.Setenv("IBM_API_KEY", "secret-key-1234")
	t.Setenv("WATSONX_PROJECT_ID", "proj-1")
	t.Setenv("WATSONX_URL", ml.URL)
	t.Setenv("GRANITE_MODEL", "ibm/granite-3-0-8b-instruct")
	t.Setenv("IAM_URL", iam.URL)
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	fakeWatsonx(t, http.StatusOK)

	for _, args := range [][]string{nil, {"check"}} {
		out, err := execute(args...)
		require.NoError(t, err, out)
		assert.Contains(t, out, "✅ IBM_API_KEY: **********...1234")
		assert.NotContains(t, out, "secret-key")
		assert.Contains(t, out, "✅ Obtained Bearer token")
		assert.Contains(t, out, strings.Repeat("x", 500)+"...")
		assert.NotContains(t, out, strings.Repeat("x", 501))
		assert.Contains(t, out, "Input tokens: 42")
		assert.Contains(t, out, "Generated tokens: 7")
		assert.Contains(t, out, "All checks passed")
	}
}

func TestCheck_MissingEnv(t *testing.T) {
	fakeWatsonx(t, http.StatusOK)
	t.Setenv("GRANITE_MODEL", "")

	out, err := execute("check")
	require.Error(t, err)
	assert.Contains(t, out, "❌ GRANITE_MODEL: Not set")
	assert.Contains(t, out, "Granite API check failed")
	assert.NotContains(t, out, "Step 2")
}

func TestCheck_InferenceFailure(t *testing.T) {
	fakeWatsonx(t, http.StatusNotFound)

	out, err := execute()
	require.Error(t, err)
	assert.Contains(t, out, "✅ Obtained Bearer token")
	assert.Contains(t, out, "HTTP 404")
}

func TestQuick(t *testing.T) {
	fakeWatsonx(t, http.StatusOK)
	out, err := execute("quick")
	require.NoError(t, err)
	assert.Contains(t, out, "Quick test passed")

	fakeWatsonx(t, http.StatusInternalServerError)
	out, err = execute("quick")
	require.Error(t, err)
	assert.Contains(t, out, "Quick test failed")
}
