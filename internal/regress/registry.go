package regress

import (
	"slices"
	"sync"

	"meshfuzz/internal/mutate"
	"meshfuzz/internal/scene"
)

// Registry maps failure sites to their best reproducer. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	records map[uint32]*Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[uint32]*Record)}
}

// Add merges a record into the table.
func (r *Registry) Add(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Site] = Merge(r.records[rec.Site], rec)
}

// addAll merges several records under one lock.
func (r *Registry) addAll(recs []*Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.records[rec.Site] = Merge(r.records[rec.Site], rec)
	}
}

// Len returns the number of known sites.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Lookup returns a copy of the record for site.
func (r *Registry) Lookup(site uint32) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[site]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all records ordered by case rank, version and
// site.
func (r *Registry) Records() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Record) int {
		if a.CaseRank != b.CaseRank {
			return a.CaseRank - b.CaseRank
		}
		if a.Version != b.Version {
			if a.Version < b.Version {
				return -1
			}
			return 1
		}
		switch {
		case a.Site < b.Site:
			return -1
		case a.Site > b.Site:
			return 1
		}
		return 0
	})
	return out
}

// Checks returns the replay table in emission order.
func (r *Registry) Checks() []Check {
	recs := r.Records()
	out := make([]Check, len(recs))
	for i := range recs {
		out[i] = recs[i].Check()
	}
	return out
}

// For binds the registry to one case and file version. The result is a
// mutate.Recorder.
func (r *Registry) For(caseName string, rank int, version uint32) *CaseRecorder {
	return &CaseRecorder{reg: r, caseName: caseName, rank: rank, version: version}
}

// CaseRecorder records the failures of one file.
type CaseRecorder struct {
	reg      *Registry
	caseName string
	rank     int
	version  uint32
}

var _ mutate.Recorder = (*CaseRecorder)(nil)

// Observe records every frame of err as a candidate reproducer for its
// site.
func (c *CaseRecorder) Observe(cand mutate.Candidate, err *scene.Error) {
	if err == nil || len(err.Frames) == 0 {
		return
	}
	var patch *mutate.BytePatch
	if cand.Patch != nil {
		p := *cand.Patch
		patch = &p
	}
	recs := make([]*Record, len(err.Frames))
	for i, f := range err.Frames {
		recs[i] = &Record{
			Site:        f.Site,
			Case:        c.caseName,
			CaseRank:    c.rank,
			Version:     c.version,
			Patch:       patch,
			TempLimit:   cand.TempLimit,
			ResultLimit: cand.ResultLimit,
			Truncate:    cand.Truncate,
			Description: f.Description,
		}
	}
	c.reg.addAll(recs)
}
