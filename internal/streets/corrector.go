// Package streets collapses spelling variants of the same street name within
// each customer's bill history, preferring forms attested in the reference
// gazetteer.
package streets

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/changelog"
	"github.com/waterbill-audit/internal/gazetteer"
)

// DefaultThreshold is the 0-100 similarity ratio a street token must exceed
// against a cluster representative to join that cluster.
const DefaultThreshold = 90

// Key addresses one raw street token within one customer's history.
type Key struct {
	AccountNumber string
	Street        string
}

// CorrectionMap maps (account_number, raw street token) to the canonical
// street chosen for that customer. It is built once over the full customer
// population and is immutable afterward.
type CorrectionMap map[Key]string

// Corrector clusters and rewrites street names per customer group. Customer
// groups are independent, so both phases fan out across a worker pool.
type Corrector struct {
	gaz       *gazetteer.Gazetteer
	threshold int
	workers   int
	log       zerolog.Logger
}

// NewCorrector creates a corrector backed by the given gazetteer. A threshold
// or worker count below 1 selects the default.
func NewCorrector(gaz *gazetteer.Gazetteer, threshold, workers int, log zerolog.Logger) *Corrector {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Corrector{
		gaz:       gaz,
		threshold: threshold,
		workers:   workers,
		log:       log.With().Str("component", "street_corrector").Logger(),
	}
}

// StreetToken extracts the street portion of an address: the substring before
// the first comma, trimmed.
func StreetToken(address string) string {
	return strings.TrimSpace(strings.SplitN(address, ",", 2)[0])
}

// group holds one customer's row indices in input order.
type group struct {
	account string
	rows    []int
}

func groupByAccount(t *billing.Table) []group {
	index := make(map[string]int)
	var groups []group
	for i := range t.Rows {
		account := t.Rows[i].AccountNumber
		gi, ok := index[account]
		if !ok {
			gi = len(groups)
			index[account] = gi
			groups = append(groups, group{account: account})
		}
		groups[gi].rows = append(groups[gi].rows, i)
	}
	return groups
}

// BuildCorrections clusters each customer's street tokens and selects the
// canonical variant, producing the full correction map for the population.
func (c *Corrector) BuildCorrections(t *billing.Table) CorrectionMap {
	groups := groupByAccount(t)
	corrections := make(CorrectionMap)

	var mu sync.Mutex
	c.runWorkers(len(groups), func(gi int) {
		g := groups[gi]
		streets := make([]string, len(g.rows))
		for i, row := range g.rows {
			streets[i] = StreetToken(t.Rows[row].Address)
		}
		clusters := clusterStreets(streets, c.threshold)
		best := c.bestVariant(flatten(clusters))

		mu.Lock()
		for _, street := range streets {
			corrections[Key{AccountNumber: g.account, Street: street}] = best
		}
		mu.Unlock()
	})

	c.log.Debug().
		Int("customers", len(groups)).
		Int("corrections", len(corrections)).
		Msg("correction map built")
	return corrections
}

// Apply rewrites every record's address using the correction map, replacing
// only the leading street segment and re-trimming the remaining segments.
// Spelling corrections are audited through the tracker, deduplicated by the
// (original, fixed) pair. It returns the number of rows whose street changed.
func (c *Corrector) Apply(t *billing.Table, corrections CorrectionMap, tracker *changelog.Tracker) int {
	groups := groupByAccount(t)
	shards := make([]*changelog.Tracker, len(groups))
	changed := make([]int, len(groups))

	c.runWorkers(len(groups), func(gi int) {
		g := groups[gi]
		shard := changelog.New()
		for _, row := range g.rows {
			rec := &t.Rows[row]
			street := StreetToken(rec.Address)
			best, ok := corrections[Key{AccountNumber: g.account, Street: street}]
			if !ok {
				best = street
			}
			if best != street {
				shard.RecordAddressFix(rec.AccountNumber, rec.BillDate, street, best)
				changed[gi]++
			}
			rec.Address = rewriteAddress(rec.Address, best)
		}
		shards[gi] = shard
	})

	// shards concatenate in group order, so the retained entry for a
	// duplicated pair is deterministic even though workers ran concurrently
	tracker.Merge(shards...)

	total := 0
	for _, n := range changed {
		total += n
	}
	c.log.Info().Int("rows_corrected", total).Msg("street correction applied")
	return total
}

// clusterStreets performs the greedy single-pass clustering: each token joins
// the first cluster whose first member scores above the threshold, otherwise
// it starts a new singleton cluster. Cluster membership is order-dependent.
func clusterStreets(streets []string, threshold int) [][]string {
	var clustered [][]string
	for _, street := range streets {
		matched := false
		for gi := range clustered {
			if fuzzy.Ratio(street, clustered[gi][0]) > threshold {
				clustered[gi] = append(clustered[gi], street)
				matched = true
				break
			}
		}
		if !matched {
			clustered = append(clustered, []string{street})
		}
	}
	return clustered
}

func flatten(clusters [][]string) []string {
	var all []string
	for _, cluster := range clusters {
		all = append(all, cluster...)
	}
	return all
}

// bestVariant flattens a customer's clusters into one frequency table and
// picks the most frequent token attested in the gazetteer, falling back to
// the most frequent token overall. Ties break on first occurrence.
func (c *Corrector) bestVariant(streets []string) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string
	for i, street := range streets {
		if _, ok := counts[street]; !ok {
			firstSeen[street] = i
			order = append(order, street)
		}
		counts[street]++
	}
	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})
	for _, candidate := range order {
		if c.gaz.Contains(candidate) {
			return candidate
		}
	}
	return order[0]
}

// rewriteAddress replaces the leading street segment, keeping all later
// comma-separated segments verbatim apart from whitespace trimming.
func rewriteAddress(address, street string) string {
	parts := strings.Split(address, ",")
	segments := make([]string, 0, len(parts))
	segments = append(segments, street)
	for _, part := range parts[1:] {
		segments = append(segments, strings.TrimSpace(part))
	}
	return strings.Join(segments, ", ")
}

func (c *Corrector) runWorkers(jobs int, fn func(job int)) {
	workers := c.workers
	if workers > jobs {
		workers = jobs
	}
	if workers <= 1 {
		for j := 0; j < jobs; j++ {
			fn(j)
		}
		return
	}
	ch := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range ch {
				fn(j)
			}
		}()
	}
	for j := 0; j < jobs; j++ {
		ch <- j
	}
	close(ch)
	wg.Wait()
}
