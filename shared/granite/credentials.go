package granite

import (
	"os"
	"strings"

	"github.com/forge-ai/testgen/shared/apierr"
)

// DefaultIAMURL is the IBM Cloud identity endpoint that exchanges API keys
// for bearer tokens.
const DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"

// Credentials identify the watsonx.ai project and model every request runs
// against. They are read once at startup and never mutated.
type Credentials struct {
	APIKey    string
	ProjectID string
	ModelID   string
	BaseURL   string
	IAMURL    string
}

// CredentialsFromEnv reads IBM_API_KEY, WATSONX_PROJECT_ID, WATSONX_URL and
// GRANITE_MODEL (all required) plus the optional IAM_URL override.
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{
		APIKey:    os.Getenv("IBM_API_KEY"),
		ProjectID: os.Getenv("WATSONX_PROJECT_ID"),
		BaseURL:   strings.TrimRight(os.Getenv("WATSONX_URL"), "/"),
		ModelID:   os.Getenv("GRANITE_MODEL"),
		IAMURL:    os.Getenv("IAM_URL"),
	}
	if c.IAMURL == "" {
		c.IAMURL = DefaultIAMURL
	}
	return c, c.Validate()
}

// Validate reports every missing field in one ConfigError.
func (c Credentials) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "IBM_API_KEY")
	}
	if c.ProjectID == "" {
		missing = append(missing, "WATSONX_PROJECT_ID")
	}
	if c.BaseURL == "" {
		missing = append(missing, "WATSONX_URL")
	}
	if c.ModelID == "" {
		missing = append(missing, "GRANITE_MODEL")
	}
	if len(missing) > 0 {
		return apierr.New(apierr.Config, "missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Mask hides all but the last four characters of a secret for log output.
func Mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", 10) + "..." + v[len(v)-4:]
}
