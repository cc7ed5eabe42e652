package domain

import (
	m "fracture.dev/pkg/fracture/internal/model"
	pkg "fracture.dev/pkg/fracture/pkg"
)

// Summarize counts unit outcomes. Yield is the share of attempted units
// that produced a payload; failed and skipped units are left out of the
// denominator, and a run with no attempted unit yields 0.
func Summarize(units []m.UnitReport) m.Summary {
	var s m.Summary

	for _, u := range units {
		s.Units++
		s.Candidates += u.Candidates
		s.Payloads += u.Accepted

		switch u.Status {
		case m.UnitGenerated:
			s.Generated++
		case m.UnitExhausted:
			s.Exhausted++
		case m.UnitRejected:
			s.Rejected++
		case m.UnitFailed:
			s.Failed++
		case m.UnitSkipped:
			s.Skipped++
		}
	}

	if attempted := s.Generated + s.Exhausted + s.Rejected; attempted > 0 {
		s.Yield = float64(s.Generated) / float64(attempted)
	}

	return s
}

// collectUnitReports reads the spilled unit reports back in spill order.
func collectUnitReports(spill pkg.FileSpill[m.UnitReport]) ([]m.UnitReport, error) {
	units := make([]m.UnitReport, 0, spill.Len())

	for report, err := range spill.All() {
		if err != nil {
			return nil, err
		}

		units = append(units, report)
	}

	return units, nil
}
