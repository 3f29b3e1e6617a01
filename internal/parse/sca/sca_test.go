package sca

import (
	"testing"

	"github.com/diffsec/govern/internal/severity"
)

func TestParseNpmAuditBOMScenario(t *testing.T) {
	doc := "\uFEFF" + `{
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
	findings, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding (scalar via skipped), got %d", len(findings))
	}
	f := findings[0]
	if f.Severity != severity.High {
		t.Errorf("severity = %s, want HIGH", f.Severity)
	}
	if !f.DirectDependency {
		t.Error("expected direct_dependency = true")
	}
	if !f.FixAvailable {
		t.Error("expected fix_available = true")
	}
	if f.PatchedVersion != "4.17.21" {
		t.Errorf("patched_version = %q, want 4.17.21", f.PatchedVersion)
	}
	if f.Exploitability != "HIGH" {
		t.Errorf("exploitability = %s, want HIGH", f.Exploitability)
	}
}

func TestParseTrivyDirectDefault(t *testing.T) {
	doc := `{"Results":[{"Vulnerabilities":[{"VulnerabilityID":"CVE-2021-1","PkgName":"openssl","InstalledVersion":"1.0","FixedVersion":"1.1","Severity":"HIGH","Title":"t"}]}]}`
	findings, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(findings) != 1 || !findings[0].DirectDependency {
		t.Fatalf("expected 1 direct finding, got %+v", findings)
	}
	if findings[0].VulnerableRange != "<1.1" {
		t.Errorf("vulnerable_range = %s, want <1.1", findings[0].VulnerableRange)
	}
}

func TestParseMalformedInput(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestParseNpmAuditOrderIsDeterministic(t *testing.T) {
	doc := `{"vulnerabilities":{
		"zebra":{"severity":"low","via":[{"name":"zebra","title":"a","severity":"low"}],"effects":[]},
		"apple":{"severity":"low","via":[{"name":"apple","title":"b","severity":"low"}],"effects":[]},
		"mango":{"severity":"low","via":[{"name":"mango","title":"c","severity":"low"}],"effects":[]}
	}}`

	first, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"apple", "mango", "zebra"}
	for i, f := range first {
		if f.PackageName != want[i] {
			t.Fatalf("finding %d package = %s, want %s (package-name order)", i, f.PackageName, want[i])
		}
	}

	second, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	for i := range first {
		if first[i].PackageName != second[i].PackageName {
			t.Fatalf("finding order differs across reparses at index %d", i)
		}
	}
}

func TestParsePipAuditRangeWithoutFix(t *testing.T) {
	doc := `{"vulnerabilities":[{"name":"flask","version":"0.12","id":"PYSEC-2019-179","fix_versions":[],"description":"d"}]}`
	findings, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].VulnerableRange != "all" {
		t.Errorf("vulnerable_range = %q, want all when no fix version is known", findings[0].VulnerableRange)
	}
	if findings[0].FixAvailable {
		t.Error("expected fix_available = false")
	}
}
