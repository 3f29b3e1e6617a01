package compliance

import "testing"

func TestCatalogueCounts(t *testing.T) {
	c := NewCatalogue()
	if got := c.Total(NISTCSF); got != 108 {
		t.Errorf("NIST CSF total = %d, want 108", got)
	}
	if got := c.Total(ISO27001); got != 114 {
		t.Errorf("ISO 27001 total = %d, want 114", got)
	}
}

func TestCatalogueIsValid(t *testing.T) {
	c := NewCatalogue()
	if !c.IsValid(NISTCSF, "PR.AC-4") {
		t.Error("PR.AC-4 should be a valid NIST CSF control")
	}
	if c.IsValid(NISTCSF, "ZZ.ZZ-999") {
		t.Error("ZZ.ZZ-999 should not be valid")
	}
	if c.IsValid(ISO27001, "A.999.999.999") {
		t.Error("A.999.999.999 should not be valid")
	}
}

func TestNISTFunctionGrouping(t *testing.T) {
	if got := NISTFunction("PR.AC-4"); got != "PR" {
		t.Errorf("NISTFunction(PR.AC-4) = %s, want PR", got)
	}
	if got := NISTFunction("DE.CM-7"); got != "DE" {
		t.Errorf("NISTFunction(DE.CM-7) = %s, want DE", got)
	}
}

func TestISODomainGrouping(t *testing.T) {
	if got := ISODomain("A.14.2.5"); got != "A.14" {
		t.Errorf("ISODomain(A.14.2.5) = %s, want A.14", got)
	}
	if got := ISODomain("A.9.1.1"); got != "A.9" {
		t.Errorf("ISODomain(A.9.1.1) = %s, want A.9", got)
	}
}

func TestControlIDsAreStableAndUnique(t *testing.T) {
	c := NewCatalogue()
	seen := make(map[string]bool)
	for _, id := range c.ControlIDs(NISTCSF) {
		if seen[id] {
			t.Fatalf("duplicate NIST control id %s", id)
		}
		seen[id] = true
	}
}
