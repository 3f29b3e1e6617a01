package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/llmclient"
	"github.com/diffsec/govern/internal/llmresult"
	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

const sastDoc = `{
  "results": [
    {
      "check_id": "python.lang.security.sql-injection",
      "path": "app/auth.py",
      "start": {"line": 45},
      "extra": {
        "severity": "ERROR",
        "message": "User input concatenated into SQL query",
        "metadata": {"cwe": ["CWE-89"]},
        "lines": "query = \"SELECT * FROM users WHERE name = '\" + name + \"'\""
      }
    }
  ]
}`

const scaDoc = "\uFEFF" + `{
  "vulnerabilities": {
    "lodash": {
      "name": "lodash",
      "severity": "high",
      "via": [
        1234,
        {
          "name": "lodash",
          "title": "Prototype Pollution",
          "severity": "high",
          "cwe": ["CWE-1321"],
          "cvss": {"score": 7.4},
          "range": ">=3.7.0 <4.17.21"
        }
      ],
      "effects": [],
      "fixAvailable": {"name": "lodash", "version": "4.17.21"}
    }
  }
}`

const dastDoc = `<?xml version="1.0"?>
<OWASPZAPReport>
  <site>
    <alerts>
      <alertitem>
        <pluginid>40018</pluginid>
        <alert>SQL Injection</alert>
        <riskcode>3</riskcode>
        <confidence>2</confidence>
        <cweid>89</cweid>
        <desc>SQL injection vulnerability found</desc>
        <solution>Use parameterised queries</solution>
        <instances>
          <instance>
            <uri>https://x/api/users/123</uri>
            <method>GET</method>
            <evidence>' OR 1=1--</evidence>
          </instance>
        </instances>
      </alertitem>
    </alerts>
  </site>
</OWASPZAPReport>`

func baseConfig() *Config {
	return &Config{
		LargeClient: llmclient.NewMockClient("large"),
		SmallClient: llmclient.NewMockClient("small"),
		Catalogue:   compliance.NewCatalogue(),
		MaxPerType:  10,
	}
}

func TestRunEmptyInputFailsFast(t *testing.T) {
	cfg := baseConfig()
	_, err := Run(context.Background(), cfg)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
}

func TestRunSingleSASTNoRetriever(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.ParsedCounts.SAST != 1 {
		t.Fatalf("ParsedCounts.SAST = %d, want 1", result.ParsedCounts.SAST)
	}
	if len(result.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(result.Results))
	}
	pr := result.Results[0]
	if pr.Error != "" {
		t.Errorf("unexpected error on result: %q", pr.Error)
	}
	if pr.PolicyText == "" {
		t.Error("expected non-empty policy text")
	}
	if pr.ModelLabel != "large" {
		t.Errorf("ModelLabel = %q, want large (SAST routes to the large client)", pr.ModelLabel)
	}
}

func TestRunRoutingAndOrdering(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)
	cfg.SCASource = []byte(scaDoc)
	cfg.DASTSource = []byte(dastDoc)
	cfg.MaxPerType = 2

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3 (1 sast + 1 sca + 1 dast, each below max_per_type=2)", len(result.Results))
	}

	wantOrder := []string{"SAST", "SCA", "DAST"}
	for i, want := range wantOrder {
		if string(result.Results[i].VulnType) != want {
			t.Errorf("Results[%d].VulnType = %q, want %q (sast-then-sca-then-dast ordering)", i, result.Results[i].VulnType, want)
		}
	}

	if result.Results[2].ModelLabel != "small" {
		t.Errorf("DAST ModelLabel = %q, want small", result.Results[2].ModelLabel)
	}
}

func TestRunMaxPerTypeZeroYieldsNoResultsButCoverage(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)
	cfg.MaxPerType = 0

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("len(Results) = %d, want 0", len(result.Results))
	}
	if result.Coverage.NIST.TotalControls != 108 {
		t.Errorf("coverage still expected to be computed on an empty work list, got %+v", result.Coverage)
	}
}

func TestRunCancellationStopsGeneration(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)
	cfg.SCASource = []byte(scaDoc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRunPerFindingGenerationFailureIsolated(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)
	cfg.SCASource = []byte(scaDoc)
	cfg.LargeClient = &llmclient.MockClient{
		ModelLabel: "large",
		FailOn:     func(prompt string) bool { return true },
	}

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(result.Results))
	}
	for _, pr := range result.Results {
		if pr.Error == "" {
			t.Errorf("expected every result to carry a generation error, got none for %q", pr.Vulnerability.Title())
		}
	}
}

func TestRunEmitsProgressEvents(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)

	var phases []llmresult.Phase
	cfg.Emit = func(p llmresult.Progress) { phases = append(phases, p.Phase) }

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []llmresult.Phase{llmresult.PhaseParsing, llmresult.PhaseRAG, llmresult.PhaseLLMGeneration, llmresult.PhaseComplianceValidation, llmresult.PhaseSaving, llmresult.PhaseComplete}
	for _, w := range want {
		found := false
		for _, p := range phases {
			if p == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected phase %q to be emitted, got %v", w, phases)
		}
	}
}

func TestSelectBySeverityOrdersDescendingWithinType(t *testing.T) {
	low := vuln.NewSAST(&vuln.SASTFinding{Title: "low", Severity: severity.Low})
	critical := vuln.NewSAST(&vuln.SASTFinding{Title: "critical", Severity: severity.Critical})
	medium := vuln.NewSAST(&vuln.SASTFinding{Title: "medium", Severity: severity.Medium})

	selected := SelectBySeverity([]vuln.Vulnerability{low, critical, medium}, 10)
	if len(selected) != 3 {
		t.Fatalf("len(selected) = %d, want 3", len(selected))
	}
	wantOrder := []string{"critical", "medium", "low"}
	for i, want := range wantOrder {
		if selected[i].Title() != want {
			t.Errorf("selected[%d].Title() = %q, want %q", i, selected[i].Title(), want)
		}
	}
}

func TestSelectBySeverityAppliesMaxPerTypePerGroup(t *testing.T) {
	sastHigh := vuln.NewSAST(&vuln.SASTFinding{Title: "sast-high", Severity: severity.High})
	sastLow := vuln.NewSAST(&vuln.SASTFinding{Title: "sast-low", Severity: severity.Low})
	scaOnly := vuln.NewSCA(&vuln.SCAFinding{PackageName: "x", Severity: severity.Critical})

	selected := SelectBySeverity([]vuln.Vulnerability{sastHigh, sastLow, scaOnly}, 1)
	if len(selected) != 2 {
		t.Fatalf("len(selected) = %d, want 2 (1 sast + 1 sca)", len(selected))
	}
	if selected[0].Title() != "sast-high" {
		t.Errorf("selected[0].Title() = %q, want sast-high (higher severity kept under max_per_type=1)", selected[0].Title())
	}
}

func TestRunProgressSinkPanicIsNonFatal(t *testing.T) {
	cfg := baseConfig()
	cfg.SASTSource = []byte(sastDoc)
	cfg.Emit = func(llmresult.Progress) { panic("boom") }

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run returned error despite a panicking sink: %v", err)
	}
}
