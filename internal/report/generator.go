package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/llm"
)

const promptTemplate = `You are a world-class cybersecurity analyst and incident responder. Your goal is to provide a comprehensive, clear, and actionable security report based on a regex scan of a %s access log performed at %s.

Threat Summary:
%s

Your response MUST be structured in the following five parts using Markdown. Use bolding and bullet points to make the report easy to read.

## 1. Threat Classification & Severity
    * **Threat**: Clearly state the most likely attack pattern for each detected category (e.g., SQL Injection, Cross-Site Scripting, Path Traversal, Reconnaissance Scan).
    * **Severity**: Assign a severity level (Critical, High, Medium, Low, or Informational) and briefly justify your reasoning.

## 2. Detailed Analysis & Indicators
    * Explain why each detected pattern category is dangerous.
    * Describe the attacker's likely goal for each category.

## 3. Multi-Layer Hardening Recommendations
    * **Web Server Layer (%s/WAF):** Suggest specific configuration changes or ModSecurity-style WAF rules to block these patterns at the edge.
    * **Application Layer:** Describe the necessary code changes (e.g., parameterized queries for SQLi, context-aware output encoding for XSS).
    * **Network Layer:** Suggest relevant firewall rules if applicable.

## 4. Incident Response Next Steps
    * Provide a short, actionable checklist of immediate steps the operator should take.

## 5. Further Reading
    * Based on the threats, provide 2-3 reference links to authoritative sources. Use the following links as your source of truth:
        * SQL Injection: https://owasp.org/www-community/attacks/SQL_Injection
        * Cross-Site Scripting (XSS): https://owasp.org/www-community/attacks/xss/
        * Path Traversal: https://owasp.org/www-community/attacks/Path_Traversal`

// Generator formats threat summaries into analyst prompts and delegates to
// an LLM client. Stateless given its inputs.
type Generator struct {
	client llm.Client
	logger *slog.Logger
}

// NewGenerator creates a new report generator
func NewGenerator(client llm.Client, logger *slog.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

// BuildPrompt renders the analyst prompt. Deterministic given its inputs:
// the same summary, log type and timestamp always produce the same prompt.
func BuildPrompt(threatSummary, logType string, ts time.Time) string {
	return fmt.Sprintf(promptTemplate, logType, ts.UTC().Format(time.RFC3339), threatSummary, logType)
}

// Generate produces a Markdown report for the given threat summary. A
// provider failure is returned as an in-band error report body alongside the
// error itself, so callers always have something to show and can decide
// whether to cache it (they should not).
func (g *Generator) Generate(ctx context.Context, threatSummary, logType string, ts time.Time) (string, error) {
	prompt := BuildPrompt(threatSummary, logType, ts)

	g.logger.Info("Generating report", "log_type", logType, "prompt_length", len(prompt))
	text, err := g.client.Generate(ctx, prompt)
	if err != nil {
		g.logger.Error("Report generation failed", "log_type", logType, "error", err)
		return ErrorBody(err), fmt.Errorf("report generation failed: %w", err)
	}

	return text, nil
}

// ErrorBody renders the in-band error report shown when the provider call
// fails. Findings from the scan stage are still returned alongside it.
func ErrorBody(err error) string {
	return fmt.Sprintf("## AI Analysis Error\n\n**Error:** %v\n\nThe regex scan findings below were still collected and remain valid.", err)
}
