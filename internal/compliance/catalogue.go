package compliance

import "fmt"

// nistCategoryCounts gives, for each NIST CSF category, the number of
// subcategories it contains. The category's two-letter function prefix
// (before the dot) is derived mechanically from the key.
var nistCategoryCounts = []struct {
	category string
	count    int
}{
	{"ID.AM", 6}, {"ID.BE", 5}, {"ID.GV", 4}, {"ID.RA", 6}, {"ID.RM", 3}, {"ID.SC", 5},
	{"PR.AC", 7}, {"PR.AT", 5}, {"PR.DS", 8}, {"PR.IP", 12}, {"PR.MA", 2}, {"PR.PT", 5},
	{"DE.AE", 5}, {"DE.CM", 8}, {"DE.DP", 5},
	{"RS.RP", 1}, {"RS.CO", 5}, {"RS.AN", 5}, {"RS.MI", 3}, {"RS.IM", 2},
	{"RC.RP", 1}, {"RC.IM", 2}, {"RC.CO", 3},
}

// isoDomainSubclauses gives, for each ISO 27001 Annex A domain, the number
// of controls within each of its numbered subclauses (A.14 -> [3, 9, 1]
// means A.14.1 has 3 controls, A.14.2 has 9, A.14.3 has 1). This mirrors the
// real standard's structure closely enough that literal control ids quoted
// elsewhere (e.g. A.14.2.5) resolve against the catalogue.
var isoDomainSubclauses = []struct {
	domain     string
	subclauses []int
}{
	{"A.5", []int{2}},
	{"A.6", []int{5, 2}},
	{"A.7", []int{2, 3, 1}},
	{"A.8", []int{4, 3, 3}},
	{"A.9", []int{2, 6, 1, 5}},
	{"A.10", []int{2}},
	{"A.11", []int{6, 9}},
	{"A.12", []int{4, 1, 1, 4, 1, 2, 1}},
	{"A.13", []int{3, 4}},
	{"A.14", []int{3, 9, 1}},
	{"A.15", []int{3, 2}},
	{"A.16", []int{7}},
	{"A.17", []int{3, 1}},
	{"A.18", []int{5, 3}},
}

// isoDomainCounts gives, for each ISO 27001 Annex A domain, the total number
// of controls it contains (the sum of isoDomainSubclauses).
var isoDomainCounts = func() []struct {
	domain string
	count  int
} {
	out := make([]struct {
		domain string
		count  int
	}, 0, len(isoDomainSubclauses))
	for _, dom := range isoDomainSubclauses {
		total := 0
		for _, n := range dom.subclauses {
			total += n
		}
		out = append(out, struct {
			domain string
			count  int
		}{dom.domain, total})
	}
	return out
}()

// NISTControlIDs returns the 108 subcategory ids of the NIST CSF catalogue,
// in stable catalogue order.
func NISTControlIDs() []string {
	ids := make([]string, 0, 108)
	for _, cat := range nistCategoryCounts {
		for i := 1; i <= cat.count; i++ {
			ids = append(ids, fmt.Sprintf("%s-%d", cat.category, i))
		}
	}
	return ids
}

// ISOControlIDs returns the 114 Annex A control ids of the ISO 27001
// catalogue, in stable catalogue order.
func ISOControlIDs() []string {
	ids := make([]string, 0, 114)
	for _, dom := range isoDomainSubclauses {
		for sub, count := range dom.subclauses {
			for i := 1; i <= count; i++ {
				ids = append(ids, fmt.Sprintf("%s.%d.%d", dom.domain, sub+1, i))
			}
		}
	}
	return ids
}

// NISTFunction derives a NIST CSF control's function grouping (ID, PR, DE,
// RS, RC) from its two-letter prefix before the dot.
func NISTFunction(controlID string) string {
	for i, c := range controlID {
		if c == '.' {
			return controlID[:i]
		}
	}
	return controlID
}

// ISODomain derives an ISO 27001 control's domain grouping (A.5, A.6, …)
// from its first two dot-separated tokens.
func ISODomain(controlID string) string {
	dotCount := 0
	for i, c := range controlID {
		if c == '.' {
			dotCount++
			if dotCount == 2 {
				return controlID[:i]
			}
		}
	}
	return controlID
}

// Catalogue holds the fixed, deterministic set of valid control ids per
// framework. Coverage analysis discards extracted ids not present here, so
// only recognised controls count as covered.
type Catalogue struct {
	nist    map[string]bool
	iso     map[string]bool
	nistIDs []string
	isoIDs  []string
}

// NewCatalogue builds the static catalogue embedded with the analyser.
func NewCatalogue() *Catalogue {
	nistIDs := NISTControlIDs()
	isoIDs := ISOControlIDs()

	nist := make(map[string]bool, len(nistIDs))
	for _, id := range nistIDs {
		nist[id] = true
	}
	iso := make(map[string]bool, len(isoIDs))
	for _, id := range isoIDs {
		iso[id] = true
	}

	return &Catalogue{nist: nist, iso: iso, nistIDs: nistIDs, isoIDs: isoIDs}
}

// IsValid reports whether controlID is a recognised id within framework.
func (c *Catalogue) IsValid(framework Framework, controlID string) bool {
	switch framework {
	case NISTCSF:
		return c.nist[controlID]
	case ISO27001:
		return c.iso[controlID]
	default:
		return false
	}
}

// Total returns the total number of controls in framework.
func (c *Catalogue) Total(framework Framework) int {
	switch framework {
	case NISTCSF:
		return len(c.nistIDs)
	case ISO27001:
		return len(c.isoIDs)
	default:
		return 0
	}
}

// ControlIDs returns every control id in framework, in catalogue order.
func (c *Catalogue) ControlIDs(framework Framework) []string {
	switch framework {
	case NISTCSF:
		return c.nistIDs
	case ISO27001:
		return c.isoIDs
	default:
		return nil
	}
}
