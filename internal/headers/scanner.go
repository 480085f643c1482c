package headers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/llm"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/model"
)

// recommendedHeaders lists the security headers a hardened site should send,
// in report order
var recommendedHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"Permissions-Policy",
}

const allPresentBody = "## All Recommended Security Headers Found\n\nExcellent work. No remediation is needed at this time."

const headerPromptTemplate = `As a cybersecurity expert, you are reviewing the security headers for the website: %s.

The following critical security headers are missing: **%s**.

Please provide a concise, actionable report in Markdown format. The report MUST have the following sections:

## 1. Overall Security Grade
Assign a letter grade (A, B, C, D, or F) based on the number and importance of the missing headers and briefly explain your reasoning.

## 2. Impact of Missing Headers
Briefly explain the security risk associated with each of the missing headers. Use bullet points for clarity.

## 3. Nginx Remediation Guide
Provide a single, ready-to-use Nginx configuration code block with the correct add_header directives to fix all the missing headers.

## 4. Apache Remediation Guide
Provide a single, ready-to-use Apache configuration code block to fix all the missing headers, using .htaccess if applicable.`

// Scanner performs passive security-header scans of live websites and asks
// the LLM for remediation advice on whatever is missing
type Scanner struct {
	client     llm.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScanner creates a new header scanner
func NewScanner(client llm.Client, timeout time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		client:     client,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Scan fetches the target URL and checks which recommended security headers
// are present. No LLM involvement; pure header inspection.
func (s *Scanner) Scan(ctx context.Context, targetURL string) ([]model.HeaderFinding, error) {
	if !strings.HasPrefix(targetURL, "http://") && !strings.HasPrefix(targetURL, "https://") {
		targetURL = "https://" + targetURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch target: %w", err)
	}
	defer resp.Body.Close()

	findings := make([]model.HeaderFinding, 0, len(recommendedHeaders))
	for _, name := range recommendedHeaders {
		present := resp.Header.Get(name) != ""
		finding := "Missing"
		if present {
			finding = "Present"
		}
		findings = append(findings, model.HeaderFinding{
			Name:      name,
			Finding:   finding,
			IsPresent: present,
		})
	}

	s.logger.Info("Header scan complete", "url", targetURL, "missing", countMissing(findings))
	return findings, nil
}

// Analyze sends the scan findings to the LLM for a graded remediation
// report. A site with all headers present short-circuits to a fixed body
// without a provider call. Provider errors come back in-band so the scan
// findings retain their value.
func (s *Scanner) Analyze(ctx context.Context, findings []model.HeaderFinding, targetURL string) string {
	var missing []string
	for _, f := range findings {
		if !f.IsPresent {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) == 0 {
		return allPresentBody
	}

	prompt := fmt.Sprintf(headerPromptTemplate, targetURL, strings.Join(missing, ", "))
	explanation, err := s.client.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("Header analysis failed", "url", targetURL, "error", err)
		return fmt.Sprintf("## AI Analysis Error\n\n**Error:** %v\n\nThe header scan findings are still valid.", err)
	}

	return explanation
}

func countMissing(findings []model.HeaderFinding) int {
	n := 0
	for _, f := range findings {
		if !f.IsPresent {
			n++
		}
	}
	return n
}
