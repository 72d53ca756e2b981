package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/web"
	"github.com/spf13/cobra"
)

const checkPrompt = `Generate a simple Java JUnit test case for a calculator add method.

Requirements:
- Use JUnit 5 annotations
- Test the add method with two integers
- Include proper assertions

Generate the test class:`

const maxPreview = 500

var requiredVars = []string{"IBM_API_KEY", "WATSONX_PROJECT_ID", "WATSONX_URL", "GRANITE_MODEL"}

func checkParams() granite.Params {
	topP, penalty := 0.9, 1.1
	return granite.Params{
		DecodingMethod:    "greedy",
		MaxNewTokens:      200,
		Temperature:       0.3,
		TopP:              &topP,
		RepetitionPenalty: &penalty,
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "granitecheck",
		Short:         "Check IBM watsonx.ai Granite connectivity",
		Long:          "Checks the environment, obtains an IAM token and runs a short generation against the configured Granite model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return report(cmd.OutOrStdout(), runCheck(cmd.Context(), cmd.OutOrStdout(), timeout))
		},
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout",
		web.EnvDuration("GRANITE_TIMEOUT", granite.DefaultTimeout), "per-request timeout")

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run the detailed check (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return report(cmd.OutOrStdout(), runCheck(cmd.Context(), cmd.OutOrStdout(), timeout))
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "quick",
		Short: "Run a single short generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuick(cmd.Context(), cmd.OutOrStdout(), timeout)
		},
	})
	return root
}

func report(out io.Writer, err error) error {
	if err != nil {
		fmt.Fprintf(out, "\n❌ Granite API check failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "\n✅ All checks passed! Granite API is working correctly.")
	return nil
}

func runCheck(ctx context.Context, out io.Writer, timeout time.Duration) error {
	fmt.Fprintln(out, "🤖 Testing IBM Granite API Connection")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	fmt.Fprintln(out, "📋 Step 1: Checking environment variables...")
	for _, k := range requiredVars {
		if v := os.Getenv(k); v != "" {
			fmt.Fprintf(out, "✅ %s: %s\n", k, granite.Mask(v))
		} else {
			fmt.Fprintf(out, "❌ %s: Not set\n", k)
		}
	}
	creds, err := granite.CredentialsFromEnv()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n🔑 Step 2: Testing IAM token generation...")
	tokens := granite.NewTokenCache(creds.IAMURL, creds.APIKey,
		granite.WithIAMHTTPClient(&http.Client{Timeout: timeout}))
	tok, err := tokens.Token()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Obtained %s token, expires %s\n", tok.Type(), tok.Expiry.Format(time.RFC3339))

	fmt.Fprintln(out, "\n🧠 Step 3: Testing Granite model inference...")
	client, err := granite.NewClient(creds, granite.WithTimeout(timeout), granite.WithTokenProvider(tokens))
	if err != nil {
		return err
	}
	res, err := client.Generate(ctx, checkPrompt, checkParams())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n📄 Generated Response:")
	fmt.Fprintln(out, strings.Repeat("-", 50))
	text := []rune(res.Raw)
	if len(text) > maxPreview {
		fmt.Fprintln(out, string(text[:maxPreview])+"...")
	} else {
		fmt.Fprintln(out, string(text))
	}

	fmt.Fprintln(out, "\n📊 Response Metadata:")
	fmt.Fprintf(out, "Model ID: %s\n", orNA(res.Model))
	fmt.Fprintf(out, "Input tokens: %d\n", res.InputTokens)
	fmt.Fprintf(out, "Generated tokens: %d\n", res.GeneratedTokens)
	if res.StopReason != "" {
		fmt.Fprintf(out, "Stop reason: %s\n", res.StopReason)
	}
	return nil
}

func runQuick(ctx context.Context, out io.Writer, timeout time.Duration) error {
	creds, err := granite.CredentialsFromEnv()
	if err == nil {
		var client *granite.Client
		tokens := granite.NewTokenCache(creds.IAMURL, creds.APIKey,
			granite.WithIAMHTTPClient(&http.Client{Timeout: timeout}))
		client, err = granite.NewClient(creds, granite.WithTimeout(timeout), granite.WithTokenProvider(tokens))
		if err == nil {
			_, err = granite.Probe(ctx, client)
		}
	}
	if err != nil {
		fmt.Fprintf(out, "❌ Quick test failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "✅ Quick test passed - Granite API is working!")
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
