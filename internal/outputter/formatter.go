package outputter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"blastradius/internal/domain"
	"blastradius/internal/logging"
)

// Format selects the report rendering
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Write renders a report in the given format
func Write(w io.Writer, report *domain.Report, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatCSV:
		return writeCSV(w, report)
	case FormatText, "":
		return writeText(w, report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteFile renders a report to a file, or to stdout when path is empty
func WriteFile(path string, report *domain.Report, format Format) error {
	if path == "" {
		return Write(os.Stdout, report, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()
	if err := Write(f, report, format); err != nil {
		return err
	}
	logging.LogInfo(fmt.Sprintf("Report saved to %s", path))
	return nil
}

func writeJSON(w io.Writer, report *domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeCSV(w io.Writer, report *domain.Report) error {
	cw := csv.NewWriter(w)
	header := []string{"identity", "resource", "actions", "criticality", "composite_score", "trust_hops", "path", "incomplete"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, result := range report.Results {
		for _, f := range result.Findings {
			row := []string{
				f.IdentityID,
				f.ResourceID,
				strings.Join(f.Actions, " "),
				strconv.FormatFloat(f.Criticality, 'f', 1, 64),
				strconv.FormatFloat(f.CompositeScore, 'f', 2, 64),
				strconv.Itoa(f.TrustHops),
				strings.Join(f.Path, " -> "),
				strconv.FormatBool(f.Incomplete),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, report *domain.Report) error {
	var b strings.Builder

	b.WriteString("\n" + strings.Repeat("═", 79) + "\n")
	b.WriteString("💥 BLAST RADIUS REPORT\n")
	b.WriteString(strings.Repeat("═", 79) + "\n")
	b.WriteString(fmt.Sprintf("Run: %s   Identities assessed: %d\n", report.RunID, report.Identities))

	for _, result := range report.Results {
		b.WriteString("\n" + strings.Repeat("─", 79) + "\n")
		header := fmt.Sprintf("🔑 Identity: %s  (%d reachable resources)", result.IdentityID, len(result.Findings))
		if result.Incomplete {
			header += "  ⚠️ INCOMPLETE"
		}
		b.WriteString(header + "\n")

		for i, f := range result.Findings {
			b.WriteString(fmt.Sprintf("%3d. %-40s  score %7.2f  criticality %5.1f  hops %d\n",
				i+1, f.ResourceID, f.CompositeScore, f.Criticality, f.TrustHops))
			b.WriteString(fmt.Sprintf("     actions: %s\n", strings.Join(f.Actions, ", ")))
			if len(f.Path) > 0 {
				b.WriteString(fmt.Sprintf("     via: %s\n", strings.Join(f.Path, " → ")))
			}
		}

		for _, warning := range result.Warnings {
			b.WriteString(fmt.Sprintf("     ⚠️  %s\n", warning))
		}
	}

	if len(report.Skipped) > 0 {
		b.WriteString("\n" + strings.Repeat("─", 79) + "\n")
		b.WriteString("⏭️  Skipped or partial identities:\n")
		for _, s := range report.Skipped {
			line := fmt.Sprintf("   • %s: %s", s.IdentityID, s.Reason)
			if s.Partial {
				line += " (partial results retained)"
			}
			if s.Detail != "" {
				line += ": " + s.Detail
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString(strings.Repeat("═", 79) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}
