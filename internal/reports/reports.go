// Package reports renders security audit reports as PDF.
package reports

import (
	"fmt"

	"github.com/memshield/memshield/internal/audit"
	"github.com/memshield/memshield/internal/classifier"
)

// AuditReportPDF renders the audit summary: security score, event breakdowns,
// recent events and the active rule inventory.
func AuditReportPDF(report *audit.Report, rules []*classifier.Rule) ([]byte, error) {
	pdf := NewPDFReport("Security Audit Report")

	pdf.AddSection("Security Posture")
	pdf.AddParagraph(fmt.Sprintf(
		"Security score: %d/100. The score starts at 100 and is reduced by 5 for each blocked operation and 10 for each critical event in the retained window.",
		report.SecurityScore))
	pdf.AddSummaryTable(map[string]int{
		"Total Events":    report.TotalEvents,
		"Blocked Events":  report.BlockedEvents,
		"Critical Events": report.CriticalEvents,
	})

	if len(report.BySeverity) > 0 {
		pdf.AddSection("Events by Severity")
		severityData := make(map[string]int, len(report.BySeverity))
		for sev, count := range report.BySeverity {
			severityData[string(sev)] = count
		}
		pdf.AddChart("", severityData)
	}

	if len(report.ByResult) > 0 {
		pdf.AddSection("Events by Result")
		resultData := make(map[string]int, len(report.ByResult))
		for res, count := range report.ByResult {
			resultData[string(res)] = count
		}
		pdf.AddChart("", resultData)
	}

	if len(report.ByType) > 0 {
		pdf.AddSection("Events by Type")
		typeData := make(map[string]int, len(report.ByType))
		for t, count := range report.ByType {
			typeData[string(t)] = count
		}
		pdf.AddSummaryTable(typeData)
	}

	if len(report.RecentEvents) > 0 {
		pdf.AddSection("Recent Events")
		headers := []string{"Time", "Type", "Severity", "Result", "Details"}
		rows := make([][]string, 0, len(report.RecentEvents))
		for _, e := range report.RecentEvents {
			rows = append(rows, []string{
				e.Timestamp.Format("01-02 15:04"),
				string(e.Type),
				string(e.Severity),
				string(e.Result),
				e.Details,
			})
		}
		pdf.AddTable(headers, rows)
	}

	if len(rules) > 0 {
		pdf.AddPageBreak()
		pdf.AddSection(fmt.Sprintf("Active Rules (%d)", len(rules)))
		headers := []string{"ID", "Family", "Classification", "Action", "Severity"}
		rows := make([][]string, 0, len(rules))
		for _, r := range rules {
			rows = append(rows, []string{
				r.ID,
				string(r.Family),
				string(r.Classification),
				string(r.Action),
				string(r.Severity),
			})
		}
		pdf.AddTable(headers, rows)
	}

	return pdf.Output()
}
