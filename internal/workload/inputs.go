package workload

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"slices"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/gridbench/internal/dataset"
	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/sampler"
	"github.com/arkilian/gridbench/pkg/types"
)

// subSeed derives an independent seed for one input stream from the run seed.
func subSeed(seed int64, stream string) int64 {
	buf := make([]byte, 8, 8+len(stream))
	binary.LittleEndian.PutUint64(buf, uint64(seed))
	buf = append(buf, stream...)
	return int64(murmur3.Sum64(buf))
}

// inputs are generated once per run and shared by every target so that the
// two strategies see identical operations.
type inputs struct {
	// ids present in every target's dataset, ascending
	ids []int64

	// points maps a shared id to its sampled coordinate
	points map[int64]types.GeoPoint

	indexPoints    []types.GeoPoint
	pointQueries   []types.GeoPoint
	neighborPoints []types.GeoPoint

	// insertPoints holds one batch per slot; insertBase is the first fresh id
	insertPoints [][]types.GeoPoint
	insertBase   int64
	insertSeed   int64

	updateIDs [][]int64
	deleteIDs [][]int64
}

// slots is the number of executions per phase: one warm-up plus the trials.
func (o *Options) slots() int { return o.Trials + 1 }

func buildInputs(opts *Options, targets []Target) (*inputs, error) {
	in := &inputs{points: make(map[int64]types.GeoPoint)}

	var maxID int64
	counts := make(map[int64]int)
	for _, t := range targets {
		for _, rec := range t.Dataset.Records {
			counts[rec.ID]++
			if _, ok := in.points[rec.ID]; !ok {
				in.points[rec.ID] = rec.Point
			}
		}
		maxID = max(maxID, t.Dataset.MaxID())
	}
	for id, n := range counts {
		if n == len(targets) {
			in.ids = append(in.ids, id)
		}
	}
	slices.Sort(in.ids)
	if len(in.ids) == 0 {
		return nil, gberr.InvalidParameter("datasets share no records; nothing to benchmark")
	}

	for _, id := range in.ids {
		in.indexPoints = append(in.indexPoints, in.points[id])
	}

	in.pointQueries = in.pickPoints(subSeed(opts.Seed, string(PhasePointQuery)), opts.QueryCount)
	in.neighborPoints = in.pickPoints(subSeed(opts.Seed, string(PhaseNeighborQuery)), opts.QueryCount)

	insertSeed := subSeed(opts.Seed, string(PhaseInsert))
	in.insertBase = maxID + 1
	in.insertSeed = insertSeed
	for slot := 0; slot < opts.slots(); slot++ {
		batch, err := sampler.Sample(opts.BatchSize, opts.Bounds, sampler.Uniform{}, insertSeed+int64(slot))
		if err != nil {
			return nil, err
		}
		in.insertPoints = append(in.insertPoints, batch)
	}

	updateRng := rand.New(rand.NewSource(subSeed(opts.Seed, string(PhaseUpdate))))
	for slot := 0; slot < opts.slots(); slot++ {
		in.updateIDs = append(in.updateIDs, sampleIDs(updateRng, in.ids, opts.BatchSize))
	}

	// Delete slots consume disjoint slices of one shuffle
	deleteRng := rand.New(rand.NewSource(subSeed(opts.Seed, string(PhaseDelete))))
	shuffled := slices.Clone(in.ids)
	deleteRng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for slot := 0; slot < opts.slots(); slot++ {
		start := min(slot*opts.BatchSize, len(shuffled))
		end := min(start+opts.BatchSize, len(shuffled))
		in.deleteIDs = append(in.deleteIDs, shuffled[start:end])
	}

	return in, nil
}

// pickPoints draws n shared points with replacement.
func (in *inputs) pickPoints(seed int64, n int) []types.GeoPoint {
	rng := rand.New(rand.NewSource(seed))
	out := make([]types.GeoPoint, n)
	for i := range out {
		out[i] = in.points[in.ids[rng.Intn(len(in.ids))]]
	}
	return out
}

// sampleIDs draws up to n distinct ids.
func sampleIDs(rng *rand.Rand, ids []int64, n int) []int64 {
	n = min(n, len(ids))
	out := make([]int64, 0, n)
	for _, i := range rng.Perm(len(ids))[:n] {
		out = append(out, ids[i])
	}
	return out
}

// insertRecords builds the fresh batch for one slot under a target's adapter.
// Ids continue above every dataset so they are never reused.
func (in *inputs) insertRecords(opts *Options, t Target, slot int) ([]types.LocationRecord, error) {
	built, err := dataset.Build(in.insertPoints[slot], t.Adapter, t.Res, opts.Categories, opts.Values, in.insertSeed+int64(slot))
	if err != nil {
		return nil, err
	}
	base := in.insertBase + int64(slot*opts.BatchSize)
	for i := range built.Records {
		rec := &built.Records[i]
		rec.ID = base + rec.ID - 1
		rec.Name = fmt.Sprintf("loc_%d", rec.ID)
	}
	return built.Records, nil
}
