package analyzer

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	// NoDataMessage is reported when there are no rate failures to analyze.
	NoDataMessage  = "No data available for analysis"
	unknownNetwork = "Unknown"
	topProviders   = 5
	topCPTs        = 10
	topPriority    = 10
)

type ProviderStats struct {
	TIN          string  `json:"tin"`
	Name         string  `json:"name"`
	FailureCount int     `json:"failure_count"`
	TotalCharge  float64 `json:"total_charge"`
}

type ProviderAnalysis struct {
	Count        int             `json:"count"`
	Providers    []ProviderStats `json:"providers"`
	TopProviders []string        `json:"top_providers"`
}

type CPTStats struct {
	CPT           string   `json:"cpt"`
	FailureCount  int      `json:"failure_count"`
	TotalCharge   float64  `json:"total_charge"`
	Providers     []string `json:"providers"`
	ProviderCount int      `json:"provider_count"`
}

type CPTProvider struct {
	CPT          string `json:"cpt"`
	TIN          string `json:"tin"`
	ProviderName string `json:"provider_name"`
	Count        int    `json:"count"`
}

type CPTAnalysis struct {
	Count                 int           `json:"count"`
	CPTCodes              []CPTStats    `json:"cpt_codes"`
	TopCPTCodes           []string      `json:"top_cpt_codes"`
	TopCPTTINCombinations []CPTProvider `json:"top_cpt_tin_combinations"`
}

type ChargeDistribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

type FinancialImpact struct {
	TotalCharge        float64            `json:"total_charge"`
	AverageCharge      float64            `json:"average_charge"`
	ChargeDistribution ChargeDistribution `json:"charge_distribution"`
}

type NetworkStatus struct {
	Counts      map[string]int     `json:"counts"`
	Percentages map[string]float64 `json:"percentages"`
	Charges     map[string]float64 `json:"charges"`
}

type PriorityIssue struct {
	CPT           string  `json:"cpt"`
	ProviderTIN   string  `json:"provider_tin"`
	ProviderName  string  `json:"provider_name"`
	Frequency     int     `json:"frequency"`
	TotalCharge   float64 `json:"total_charge"`
	PriorityScore float64 `json:"priority_score"`
}

// Summary is the analysis of a set of rate failure rows. Only Error is set
// when there was nothing to analyze.
type Summary struct {
	Error              string            `json:"error,omitempty"`
	TotalFailures      int               `json:"total_failures,omitempty"`
	UniqueProviders    *ProviderAnalysis `json:"unique_providers,omitempty"`
	CPTAnalysis        *CPTAnalysis      `json:"cpt_analysis,omitempty"`
	FinancialImpact    *FinancialImpact  `json:"financial_impact,omitempty"`
	NetworkStatus      *NetworkStatus    `json:"network_status,omitempty"`
	HighPriorityIssues []PriorityIssue   `json:"high_priority_issues,omitempty"`
}

// Aggregator groups rate failure rows by provider, CPT and network.
type Aggregator struct {
	df dataframe.DataFrame
	n  int
}

func NewAggregator(rows []Row) *Aggregator {
	a := &Aggregator{n: len(rows)}
	if a.n > 0 {
		a.df = toDataFrame(rows)
	}
	return a
}

// DataFrame returns the prepared rows, including the charge_total column.
func (a *Aggregator) DataFrame() dataframe.DataFrame {
	return a.df
}

func (a *Aggregator) Analyze() Summary {
	if a.n == 0 {
		return Summary{Error: NoDataMessage}
	}

	return Summary{
		TotalFailures:      a.n,
		UniqueProviders:    a.providers(),
		CPTAnalysis:        a.cpts(),
		FinancialImpact:    a.financialImpact(),
		NetworkStatus:      a.networkStatus(),
		HighPriorityIssues: a.highPriorityIssues(),
	}
}

// ProviderCPTMatrix sums charge_total by provider TIN (rows) and CPT (columns).
// The second return is false when there are no rows.
func (a *Aggregator) ProviderCPTMatrix() (dataframe.DataFrame, bool) {
	if a.n == 0 {
		return dataframe.DataFrame{}, false
	}

	tins := a.df.Col("provider_tin").Records()
	cpts := a.df.Col("cpt").Records()
	totals := a.df.Col("charge_total").Float()

	tinKeys := distinctSorted(tins)
	cptKeys := distinctSorted(cpts)
	tinIdx := indexOf(tinKeys)
	cptIdx := indexOf(cptKeys)

	cells := make([][]float64, len(cptKeys))
	for i := range cells {
		cells[i] = make([]float64, len(tinKeys))
	}
	for i := range tins {
		cells[cptIdx[cpts[i]]][tinIdx[tins[i]]] += totals[i]
	}

	cols := []series.Series{series.New(tinKeys, series.String, "provider_tin")}
	for i, cpt := range cptKeys {
		cols = append(cols, series.New(cells[i], series.Float, cpt))
	}
	return dataframe.New(cols...), true
}

func (a *Aggregator) providers() *ProviderAnalysis {
	tins := a.df.Col("provider_tin").Records()
	names := a.df.Col("provider_name").Records()
	totals := a.df.Col("charge_total").Float()

	pa := &ProviderAnalysis{Providers: []ProviderStats{}, TopProviders: []string{}}
	for _, g := range byCount(groupBy(tins)) {
		pa.Providers = append(pa.Providers, ProviderStats{
			TIN:          g.key,
			Name:         names[g.rows[0]],
			FailureCount: len(g.rows),
			TotalCharge:  sumAt(totals, g.rows),
		})
		if len(pa.TopProviders) < topProviders {
			pa.TopProviders = append(pa.TopProviders, g.key)
		}
	}
	pa.Count = len(pa.Providers)
	return pa
}

func (a *Aggregator) cpts() *CPTAnalysis {
	cpts := a.df.Col("cpt").Records()
	tins := a.df.Col("provider_tin").Records()
	names := a.df.Col("provider_name").Records()
	totals := a.df.Col("charge_total").Float()

	ca := &CPTAnalysis{CPTCodes: []CPTStats{}, TopCPTCodes: []string{}, TopCPTTINCombinations: []CPTProvider{}}
	for _, g := range byCount(groupBy(cpts)) {
		providers := []string{}
		seen := map[string]bool{}
		for _, i := range g.rows {
			if !seen[tins[i]] {
				seen[tins[i]] = true
				providers = append(providers, tins[i])
			}
		}
		ca.CPTCodes = append(ca.CPTCodes, CPTStats{
			CPT:           g.key,
			FailureCount:  len(g.rows),
			TotalCharge:   sumAt(totals, g.rows),
			Providers:     providers,
			ProviderCount: len(providers),
		})
		if len(ca.TopCPTCodes) < topCPTs {
			ca.TopCPTCodes = append(ca.TopCPTCodes, g.key)
		}
	}
	ca.Count = len(ca.CPTCodes)

	for _, g := range byCount(a.cptTINGroups()) {
		if len(ca.TopCPTTINCombinations) == topCPTs {
			break
		}
		first := g.rows[0]
		ca.TopCPTTINCombinations = append(ca.TopCPTTINCombinations, CPTProvider{
			CPT:          cpts[first],
			TIN:          tins[first],
			ProviderName: names[first],
			Count:        len(g.rows),
		})
	}
	return ca
}

func (a *Aggregator) financialImpact() *FinancialImpact {
	col := a.df.Col("charge_total")
	values := col.Float()
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return &FinancialImpact{
		TotalCharge:   sum(values),
		AverageCharge: col.Mean(),
		ChargeDistribution: ChargeDistribution{
			Min:    col.Min(),
			Max:    col.Max(),
			Median: quantile(sorted, 0.5),
			Q1:     quantile(sorted, 0.25),
			Q3:     quantile(sorted, 0.75),
		},
	}
}

func (a *Aggregator) networkStatus() *NetworkStatus {
	networks := a.df.Col("provider_network").Records()
	totals := a.df.Col("charge_total").Float()

	ns := &NetworkStatus{
		Counts:      map[string]int{},
		Percentages: map[string]float64{},
		Charges:     map[string]float64{},
	}
	for _, g := range groupBy(networks) {
		ns.Counts[g.key] = len(g.rows)
		ns.Percentages[g.key] = float64(len(g.rows)) / float64(a.n) * 100
		ns.Charges[g.key] = sumAt(totals, g.rows)
	}
	return ns
}

// highPriorityIssues scores each (CPT, TIN) pair by frequency (60%) and
// charge (40%), each normalized to the largest pair.
func (a *Aggregator) highPriorityIssues() []PriorityIssue {
	cpts := a.df.Col("cpt").Records()
	tins := a.df.Col("provider_tin").Records()
	names := a.df.Col("provider_name").Records()
	totals := a.df.Col("charge_total").Float()

	groups := a.cptTINGroups()
	var maxFreq, maxCharge float64
	charges := make([]float64, len(groups))
	for i, g := range groups {
		charges[i] = sumAt(totals, g.rows)
		maxFreq = math.Max(maxFreq, float64(len(g.rows)))
		maxCharge = math.Max(maxCharge, charges[i])
	}

	issues := make([]PriorityIssue, 0, len(groups))
	for i, g := range groups {
		var freqScore, chargeScore float64
		if maxFreq > 0 {
			freqScore = float64(len(g.rows)) / maxFreq * 100
		}
		if maxCharge > 0 {
			chargeScore = charges[i] / maxCharge * 100
		}
		first := g.rows[0]
		issues = append(issues, PriorityIssue{
			CPT:           cpts[first],
			ProviderTIN:   tins[first],
			ProviderName:  names[first],
			Frequency:     len(g.rows),
			TotalCharge:   charges[i],
			PriorityScore: freqScore*0.6 + chargeScore*0.4,
		})
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].PriorityScore > issues[j].PriorityScore })
	if len(issues) > topPriority {
		issues = issues[:topPriority]
	}
	return issues
}

// cptTINGroups groups rows by (CPT, TIN), ordered by CPT then TIN.
func (a *Aggregator) cptTINGroups() []group {
	cpts := a.df.Col("cpt").Records()
	tins := a.df.Col("provider_tin").Records()

	keys := make([]string, len(cpts))
	for i := range cpts {
		keys[i] = cpts[i] + "\x00" + tins[i]
	}
	groups := groupBy(keys)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

func toDataFrame(rows []Row) dataframe.DataFrame {
	str := func(name string, field func(Row) string) series.Series {
		values := make([]string, len(rows))
		for i, r := range rows {
			values[i] = field(r)
		}
		return series.New(values, series.String, name)
	}
	num := func(name string, field func(Row) float64) series.Series {
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = field(r)
		}
		return series.New(values, series.Float, name)
	}
	units := make([]int, len(rows))
	for i, r := range rows {
		units[i] = r.Units
	}

	return dataframe.New(
		str("file_name", func(r Row) string { return r.FileName }),
		str("order_id", func(r Row) string { return r.OrderID }),
		str("patient_name", func(r Row) string { return r.PatientName }),
		str("date_of_service", func(r Row) string { return r.DateOfService }),
		str("provider_name", func(r Row) string { return r.ProviderName }),
		str("provider_tin", func(r Row) string { return r.ProviderTIN }),
		str("provider_npi", func(r Row) string { return r.ProviderNPI }),
		str("provider_network", func(r Row) string {
			if r.ProviderNetwork == "" {
				return unknownNetwork
			}
			return r.ProviderNetwork
		}),
		str("billing_tin", func(r Row) string { return r.BillingTIN }),
		num("total_charge", func(r Row) float64 { return r.TotalCharge }),
		str("cpt", func(r Row) string { return r.CPT }),
		str("modifier", func(r Row) string { return r.Modifier }),
		series.New(units, series.Int, "units"),
		num("charge", func(r Row) float64 { return r.Charge }),
		num("charge_total", func(r Row) float64 { return r.Charge * float64(r.Units) }),
		str("error_code", func(r Row) string { return r.ErrorCode }),
		str("error_message", func(r Row) string { return r.ErrorMessage }),
	)
}

type group struct {
	key  string
	rows []int
}

// groupBy groups row indexes by key in first-seen order.
func groupBy(keys []string) []group {
	var groups []group
	idx := map[string]int{}
	for i, k := range keys {
		g, ok := idx[k]
		if !ok {
			g = len(groups)
			idx[k] = g
			groups = append(groups, group{key: k})
		}
		groups[g].rows = append(groups[g].rows, i)
	}
	return groups
}

// byCount orders groups by size, largest first. Ties keep their order.
func byCount(groups []group) []group {
	sorted := append([]group(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].rows) > len(sorted[j].rows) })
	return sorted
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func sumAt(values []float64, rows []int) float64 {
	var total float64
	for _, i := range rows {
		total += values[i]
	}
	return total
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func distinctSorted(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func indexOf(keys []string) map[string]int {
	m := make(map[string]int, len(keys))
	for i, k := range keys {
		m[k] = i
	}
	return m
}
