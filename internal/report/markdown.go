package report

import (
	"fmt"
	"strings"
)

// Render produces the markdown analytics report. Section headings and
// table labels stay in Italian to match the campaign material shown to
// the stakeholders.
func Render(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Cybersecurity Education - Analytics Report\n\n")
	fmt.Fprintf(&b, "**Ultimo aggiornamento:** %s UTC\n\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))

	b.WriteString("## Metriche Principali\n\n")
	b.WriteString("| Metrica | Valore |\n|---------|--------|\n")
	fmt.Fprintf(&b, "| **Sessioni Totali** | %d |\n", r.Basic.TotalSessions)
	fmt.Fprintf(&b, "| **Completamenti** | %d |\n", r.Basic.CompletedSessions)
	fmt.Fprintf(&b, "| **Conversion Rate** | %.2f%% |\n", r.Basic.ConversionRate)
	fmt.Fprintf(&b, "| **Attività Recente (7gg)** | %d |\n", r.Temporal.RecentActivity)

	b.WriteString("\n## Funnel di Conversione\n\n")
	writeFunnel(&b, r.Funnel)

	b.WriteString("\n## Efficacia Posizioni QR Code\n\n")
	writeLocations(&b, r)

	b.WriteString("\n## Analisi Demografica\n\n")
	writeDemographics(&b, r.Demographics)

	if len(r.Temporal.DailyTrend) > 0 {
		b.WriteString("\n## Trend Temporale\n\n")
		b.WriteString("| Giorno | Sessioni |\n|--------|----------|\n")
		for _, day := range sortedKeys(r.Temporal.DailyTrend) {
			fmt.Fprintf(&b, "| %s | %d |\n", day, r.Temporal.DailyTrend[day])
		}
	}

	b.WriteString("\n---\n\n*Report generato automaticamente.*\n")
	return b.String()
}

func writeFunnel(b *strings.Builder, f FunnelMetrics) {
	if f.PageOpens == 0 {
		b.WriteString("Nessun dato disponibile.\n")
		return
	}
	total := float64(f.PageOpens)
	pct := func(n int) float64 { return float64(n) / total * 100 }

	b.WriteString("| Stage | Utenti | % del Totale | Drop-off |\n")
	b.WriteString("|-------|--------|--------------|----------|\n")
	fmt.Fprintf(b, "| **Aperture Pagina** | %d | 100.0%% | - |\n", f.PageOpens)
	fmt.Fprintf(b, "| **Inizio Form** | %d | %.1f%% | %.1f%% |\n",
		f.FormStarts, pct(f.FormStarts), pct(f.PageOpens-f.FormStarts))
	fmt.Fprintf(b, "| **Step 2 Completato** | %d | %.1f%% | %.1f%% |\n",
		f.Step2Completes, pct(f.Step2Completes), pct(f.FormStarts-f.Step2Completes))
	fmt.Fprintf(b, "| **Completamento Totale** | %d | %.1f%% | %.1f%% |\n",
		f.FullCompletes, pct(f.FullCompletes), pct(f.Step2Completes-f.FullCompletes))
}

func writeLocations(b *strings.Builder, r Report) {
	ranked := r.rankedLocations()
	if len(ranked) == 0 {
		b.WriteString("Nessun dato disponibile.\n")
		return
	}
	b.WriteString("| Posizione | Sessioni | Conversion Rate | Raccomandazione |\n")
	b.WriteString("|-----------|----------|-----------------|------------------|\n")
	for _, loc := range ranked {
		fmt.Fprintf(b, "| %s | %d | %.1f%% | %s |\n",
			loc.Location, loc.Count, loc.Conversion, recommendation(loc.Conversion))
	}
}

// recommendation maps a conversion rate to an effectiveness tier.
func recommendation(rate float64) string {
	switch {
	case rate >= 15:
		return "Ottima"
	case rate >= 10:
		return "Buona"
	case rate >= 5:
		return "Media"
	default:
		return "Bassa"
	}
}

func writeDemographics(b *strings.Builder, d DemographicMetrics) {
	wrote := false
	if age, ok := topKey(d.AgeDistribution); ok {
		fmt.Fprintf(b, "- **Fascia età più rappresentata:** %s (%d utenti)\n", age, d.AgeDistribution[age])
		wrote = true
	}
	totalGender := 0
	for _, n := range d.GenderDistribution {
		totalGender += n
	}
	for _, gender := range sortedKeys(d.GenderDistribution) {
		n := d.GenderDistribution[gender]
		fmt.Fprintf(b, "- **%s:** %d utenti (%.1f%%)\n", gender, n, float64(n)/float64(totalGender)*100)
		wrote = true
	}
	if edu, ok := topKey(d.EducationDistribution); ok {
		fmt.Fprintf(b, "- **Titolo di studio più rappresentato:** %s\n", edu)
		wrote = true
	}
	if !wrote {
		b.WriteString("Nessun dato disponibile.\n")
	}
}
