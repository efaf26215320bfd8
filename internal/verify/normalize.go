package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/edufund/veriflow/internal/domain"
)

// Well-known flag strings attached to fallback results. Dashboards and
// the analytics queries key off these, so they are stable constants.
const (
	FlagOracleUnavailable = "AI verification unavailable"
	FlagSystemError       = "Verification system error"
)

// Fallback scores. The asymmetry is deliberate: an oracle that was
// never tried gets the benefit of the doubt (neutral, lands in the
// manual-review band), while an attempted call that failed is penalized
// to zero so the entity cannot slip through unverified.
const (
	neutralFallbackScore   = 50
	penalizedFallbackScore = 0
)

// Normalized is the normalizer's output: a canonical result plus
// whether it came from a fallback path. Fallback results always require
// manual review; for clean parses the review requirement is decided by
// the classifier, not here.
type Normalized struct {
	Result       domain.VerificationResult
	FromFallback bool
}

// oracleResponse is the JSON shape requested from the oracle. Numeric
// fields are float64 because models frequently emit fractional values;
// they are rounded and clamped during conversion.
type oracleResponse struct {
	Score           float64            `json:"score"`
	SubScores       map[string]float64 `json:"subScores"`
	Narratives      map[string]string  `json:"narratives"`
	KeyFindings     []string           `json:"keyFindings"`
	Flags           []string           `json:"flags"`
	Recommendations string             `json:"recommendations"`
	Confidence      *float64           `json:"confidence"`
}

// Normalize converts a raw oracle outcome into a canonical
// VerificationResult. Exactly one of raw/callErr is meaningful: when
// callErr is non-nil the raw text is ignored and a deterministic
// fallback is produced. Normalize never fails; the verification
// pipeline always receives a classifiable result.
func Normalize(raw string, callErr error, kind domain.EntityKind) Normalized {
	if callErr != nil {
		var oracleErr *OracleError
		if errors.As(callErr, &oracleErr) && oracleErr.Kind == OracleUnavailable {
			return neutralFallback(fmt.Sprintf("AI verification was not performed for this %s", kind))
		}
		return penalizedFallback()
	}

	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return neutralFallback(fmt.Sprintf("Unexpected %s verification response format", kind))
	}

	var resp oracleResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return neutralFallback(fmt.Sprintf("Unexpected %s verification response format", kind))
	}

	score := domain.ClampScore(int(resp.Score))

	confidence := score
	if resp.Confidence != nil {
		confidence = domain.ClampScore(int(*resp.Confidence))
	}

	var subScores map[string]int
	if len(resp.SubScores) > 0 {
		subScores = make(map[string]int, len(resp.SubScores))
		for k, v := range resp.SubScores {
			subScores[k] = domain.ClampScore(int(v))
		}
	}

	return Normalized{
		Result: domain.VerificationResult{
			Score:           score,
			SubScores:       subScores,
			Narratives:      resp.Narratives,
			KeyFindings:     resp.KeyFindings,
			Flags:           resp.Flags,
			Recommendations: resp.Recommendations,
			Confidence:      confidence,
		},
	}
}

func neutralFallback(finding string) Normalized {
	return Normalized{
		Result: domain.VerificationResult{
			Score:           neutralFallbackScore,
			KeyFindings:     []string{finding},
			Flags:           []string{FlagOracleUnavailable},
			Recommendations: "Review this profile manually",
			Confidence:      neutralFallbackScore,
		},
		FromFallback: true,
	}
}

func penalizedFallback() Normalized {
	return Normalized{
		Result: domain.VerificationResult{
			Score:           penalizedFallbackScore,
			Flags:           []string{FlagSystemError},
			Recommendations: "Retry verification or review manually",
			Confidence:      penalizedFallbackScore,
		},
		FromFallback: true,
	}
}

// extractJSON pulls the first well-formed JSON object out of a response
// that may wrap it in prose or markdown code fences.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Scan for the matching closing brace, skipping braces inside
	// string literals and escape sequences.
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}
