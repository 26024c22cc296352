package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"gostudio/domain/table"
)

// CustomerGeneratorConfig configures the customer dataset generator
type CustomerGeneratorConfig struct {
	Rows        int       `json:"rows"`
	MissingRate float64   `json:"missing_rate"` // share of satisfaction values left empty
	RegionShift float64   `json:"region_shift"` // revenue gap between consecutive regions
	StartDate   time.Time `json:"start_date"`
	Seed        int64     `json:"seed"`
}

// DefaultCustomerConfig returns the standard fixture settings
func DefaultCustomerConfig() CustomerGeneratorConfig {
	return CustomerGeneratorConfig{
		Rows:        200,
		MissingRate: 0.4,
		RegionShift: 120,
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:        42,
	}
}

// Regions are the levels of the generated region column, in revenue order.
var Regions = []string{"North", "East", "South", "West"}

// CustomerDataGenerator builds a customer table where region drives revenue,
// tenure drives churn, and satisfaction is partially missing.
type CustomerDataGenerator struct {
	config CustomerGeneratorConfig
	rng    *rand.Rand
}

// NewCustomerDataGenerator creates a new generator
func NewCustomerDataGenerator(config CustomerGeneratorConfig) *CustomerDataGenerator {
	return &CustomerDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns a version-1 table with the columns
// customer_id, region, plan, tenure_months, support_tickets, revenue,
// signup_date, satisfaction, churned and notes.
func (g *CustomerDataGenerator) Generate() *table.Table {
	n := g.config.Rows
	ids := make([]string, n)
	regions := make([]string, n)
	plans := make([]string, n)
	tenure := make([]float64, n)
	tickets := make([]float64, n)
	revenue := make([]float64, n)
	signup := make([]time.Time, n)
	satisfaction := make([]float64, n)
	churned := make([]bool, n)
	notes := make([]string, n)

	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("CUST-%05d", i+1)
		region := i % len(Regions)
		regions[i] = Regions[region]
		if g.rng.Float64() < 0.5 {
			plans[i] = "basic"
		} else {
			plans[i] = "pro"
		}
		tenure[i] = math.Round(1 + g.rng.Float64()*59)
		tickets[i] = float64(g.rng.Intn(6))

		base := 800 - float64(region)*g.config.RegionShift
		revenue[i] = math.Round((base+g.rng.NormFloat64()*25)*100) / 100

		signup[i] = g.config.StartDate.AddDate(0, 0, g.rng.Intn(365))

		if g.rng.Float64() < g.config.MissingRate {
			satisfaction[i] = math.NaN()
		} else {
			satisfaction[i] = math.Round((3+g.rng.NormFloat64())*10) / 10
		}

		churnProb := 0.8 - tenure[i]/60*0.7
		churned[i] = g.rng.Float64() < churnProb
		notes[i] = fmt.Sprintf("account note %d for %s", i+1, regions[i])
	}

	return table.MustNew("customers.csv",
		table.StringColumn("customer_id", ids),
		table.StringColumn("region", regions),
		table.StringColumn("plan", plans),
		table.FloatColumn("tenure_months", tenure),
		table.FloatColumn("support_tickets", tickets),
		table.FloatColumn("revenue", revenue),
		table.TimeColumn("signup_date", signup),
		table.FloatColumn("satisfaction", satisfaction),
		table.BoolColumn("churned", churned, nil),
		table.StringColumn("notes", notes),
	)
}

// WriteCSV renders a table as CSV with a header row; nulls become empty cells.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for j, col := range t.Columns {
			switch {
			case col.IsNull(i):
				record[j] = ""
			case col.Kind == table.KindTime:
				record[j] = col.Times[i].Format("2006-01-02")
			case col.Kind == table.KindFloat:
				record[j] = strconv.FormatFloat(col.Floats[i], 'f', -1, 64)
			default:
				record[j] = col.StringAt(i)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TwoOutcomeTable has two equally plausible outcome columns and no goal mention,
// which forces target disambiguation.
func TwoOutcomeTable(rows int, seed int64) *table.Table {
	rng := rand.New(rand.NewSource(seed))
	revenue := make([]float64, rows)
	score := make([]float64, rows)
	spend := make([]float64, rows)
	for i := 0; i < rows; i++ {
		spend[i] = math.Round(rng.Float64()*1000) / 10
		revenue[i] = spend[i]*2 + rng.NormFloat64()*5
		score[i] = math.Round(rng.Float64()*1000) / 10
	}
	return table.MustNew("outcomes.csv",
		table.FloatColumn("marketing_spend", spend),
		table.FloatColumn("revenue", revenue),
		table.FloatColumn("score", score),
	)
}
