// Package anomaly flags statistically unusual bills. Customers with enough
// history get a model of their own; the rest are pooled, clustered and
// modeled per cluster, with one global score threshold across both regimes.
package anomaly

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/waterbill-audit/internal/billing"
)

// Config holds the detector's tunables.
type Config struct {
	// MinBillsPerCustomer separates the high-volume regime (own model per
	// customer) from the pooled low-volume regime.
	MinBillsPerCustomer int
	// LowVolumeClusters is k for partitioning pooled low-volume customers.
	LowVolumeClusters int
	// Trees and SampleSize shape each isolation forest.
	Trees      int
	SampleSize int
	// Quantile is the pooled-score cutoff: rows scoring below this quantile
	// of the whole dataset's scores are anomalous.
	Quantile float64
	Seed     int64
	Workers  int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MinBillsPerCustomer: 3,
		LowVolumeClusters:   3,
		Trees:               100,
		SampleSize:          256,
		Quantile:            0.012,
		Seed:                42,
		Workers:             runtime.NumCPU(),
	}
}

// Detector runs the two-regime outlier detection over a cleaned dataset.
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// NewDetector creates a detector. Zero-valued config fields fall back to
// defaults.
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.MinBillsPerCustomer <= 0 {
		cfg.MinBillsPerCustomer = def.MinBillsPerCustomer
	}
	if cfg.LowVolumeClusters <= 0 {
		cfg.LowVolumeClusters = def.LowVolumeClusters
	}
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Quantile <= 0 {
		cfg.Quantile = def.Quantile
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Detector{cfg: cfg, log: log.With().Str("component", "anomaly_detector").Logger()}
}

// featureRow pairs a table row index with its engineered features:
// (total_water_usage, latest_charges).
type featureRow struct {
	row int
	x   []float64
}

type scoredRow struct {
	row   int
	score float64
}

func features(rec *billing.Record) ([]float64, bool) {
	total := billing.UsageValue(rec.FreshUsage) + billing.UsageValue(rec.WasteUsage)
	charges := billing.MoneyValue(rec.LatestCharges)
	if math.IsNaN(total) || math.IsNaN(charges) {
		return nil, false
	}
	return []float64{total, charges}, true
}

// Detect scores every modelable bill and returns the indices of rows whose
// pooled score falls below the global quantile cutoff, in input order.
func (d *Detector) Detect(t *billing.Table) ([]int, error) {
	if err := t.RequireColumns(billing.ColAccountNumber, billing.ColFreshUsage,
		billing.ColWasteUsage, billing.ColLatestCharges); err != nil {
		return nil, err
	}

	// per-customer feature groups in first-seen order; rows with
	// non-numeric features are excluded from modeling
	groupIndex := make(map[string]int)
	var accounts []string
	grouped := make(map[string][]featureRow)
	for i := range t.Rows {
		rec := &t.Rows[i]
		x, ok := features(rec)
		if !ok {
			continue
		}
		if _, seen := groupIndex[rec.AccountNumber]; !seen {
			groupIndex[rec.AccountNumber] = len(accounts)
			accounts = append(accounts, rec.AccountNumber)
		}
		grouped[rec.AccountNumber] = append(grouped[rec.AccountNumber], featureRow{row: i, x: x})
	}

	var highVolume [][]featureRow
	var lowVolume []featureRow
	for _, account := range accounts {
		rows := grouped[account]
		if len(rows) >= d.cfg.MinBillsPerCustomer {
			highVolume = append(highVolume, rows)
		} else {
			lowVolume = append(lowVolume, rows...)
		}
	}

	scored := d.scoreHighVolume(highVolume)
	scored = append(scored, d.scoreLowVolume(lowVolume)...)
	if len(scored) == 0 {
		d.log.Info().Msg("no modelable rows, nothing to score")
		return []int{}, nil
	}

	// the single global cutoff couples all customers through one pooled
	// statistic, keeping the anomaly rate comparable across both regimes
	pooled := make([]float64, len(scored))
	for i, s := range scored {
		pooled[i] = s.score
	}
	cutoff := linearQuantile(pooled, d.cfg.Quantile)

	var flagged []int
	for _, s := range scored {
		if s.score < cutoff {
			flagged = append(flagged, s.row)
		}
	}
	sort.Ints(flagged)

	d.log.Info().
		Int("scored_rows", len(scored)).
		Int("high_volume_customers", len(highVolume)).
		Int("low_volume_rows", len(lowVolume)).
		Float64("cutoff", cutoff).
		Int("flagged", len(flagged)).
		Msg("anomaly detection complete")

	return flagged, nil
}

// scoreHighVolume fits one isolation forest per customer on that customer's
// own bills, so each customer's normal is defined by their own history.
// Customer models are independent and fit on a worker pool.
func (d *Detector) scoreHighVolume(groups [][]featureRow) []scoredRow {
	var mu sync.Mutex
	var scored []scoredRow

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := d.cfg.Workers
	if workers > len(groups) {
		workers = len(groups)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for gi := range jobs {
				group := groups[gi]
				rows := d.scoreGroup(group, rand.New(rand.NewSource(d.cfg.Seed+int64(gi))))
				mu.Lock()
				scored = append(scored, rows...)
				mu.Unlock()
			}
		}()
	}
	for gi := range groups {
		jobs <- gi
	}
	close(jobs)
	wg.Wait()
	return scored
}

// scoreLowVolume pools customers with too little history, standardizes the
// features, partitions the pool into k clusters and fits one model per
// cluster. Models fit on the original feature values; scaling is only for
// the partitioning.
func (d *Detector) scoreLowVolume(pool []featureRow) []scoredRow {
	if len(pool) == 0 {
		return nil
	}

	scaled := standardize(pool)
	k := d.cfg.LowVolumeClusters
	if k > len(pool) {
		k = len(pool)
	}

	partitions := make([][]featureRow, k)
	if k <= 1 {
		partitions[0] = pool
	} else {
		obs := make(clusters.Observations, len(pool))
		for i := range pool {
			obs[i] = rowObservation{pos: i, coords: scaled[i]}
		}
		km := kmeans.New()
		cc, err := km.Partition(obs, k)
		if err != nil {
			// degenerate pool; fall back to one partition rather than fail
			d.log.Warn().Err(err).Msg("low-volume clustering failed, pooling all rows")
			partitions = [][]featureRow{pool}
		} else {
			partitions = make([][]featureRow, 0, len(cc))
			for _, cluster := range cc {
				var part []featureRow
				for _, o := range cluster.Observations {
					part = append(part, pool[o.(rowObservation).pos])
				}
				partitions = append(partitions, part)
			}
		}
	}

	var scored []scoredRow
	seed := d.cfg.Seed
	for ci, part := range partitions {
		if len(part) < 2 {
			continue // too small to model, skipped silently
		}
		scored = append(scored, d.scoreGroup(part, rand.New(rand.NewSource(seed+int64(1000+ci))))...)
	}
	return scored
}

func (d *Detector) scoreGroup(group []featureRow, rng *rand.Rand) []scoredRow {
	data := make([][]float64, len(group))
	for i, fr := range group {
		data[i] = fr.x
	}
	forest := fitIsolationForest(data, d.cfg.Trees, d.cfg.SampleSize, rng)
	scored := make([]scoredRow, len(group))
	for i, fr := range group {
		scored[i] = scoredRow{row: fr.row, score: forest.decisionFunction(fr.x)}
	}
	return scored
}

// rowObservation carries the pool position through k-means partitioning.
type rowObservation struct {
	pos    int
	coords clusters.Coordinates
}

func (r rowObservation) Coordinates() clusters.Coordinates {
	return r.coords
}

func (r rowObservation) Distance(point clusters.Coordinates) float64 {
	return r.coords.Distance(point)
}

// standardize centers and scales each feature column to unit variance.
func standardize(pool []featureRow) []clusters.Coordinates {
	dims := len(pool[0].x)
	means := make([]float64, dims)
	stds := make([]float64, dims)
	column := make([]float64, len(pool))
	for j := 0; j < dims; j++ {
		for i, fr := range pool {
			column[i] = fr.x[j]
		}
		means[j] = stat.Mean(column, nil)
		stds[j] = stat.PopStdDev(column, nil)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	scaled := make([]clusters.Coordinates, len(pool))
	for i, fr := range pool {
		coords := make(clusters.Coordinates, dims)
		for j := 0; j < dims; j++ {
			coords[j] = (fr.x[j] - means[j]) / stds[j]
		}
		scaled[i] = coords
	}
	return scaled
}

// linearQuantile computes the q-quantile with linear interpolation between
// order statistics. For 0 < q < 1 on distinct scores the result sits strictly
// above the minimum, so the worst-scoring row always clears a strict cutoff.
func linearQuantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
