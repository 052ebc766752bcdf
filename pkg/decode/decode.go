// Package decode joins trace records with a signal database into a wide,
// timestamped table of physical values.
package decode

import (
	"sort"

	"github.com/mscrnt/candecode/pkg/signaldb"
	"github.com/mscrnt/candecode/pkg/trace"
)

// Resolver maps frame ids to message definitions
type Resolver interface {
	SignalNames() []string
	Lookup(id uint32) (*signaldb.Message, bool)
}

// Stats describes how records were resolved against the database
type Stats struct {
	Records       int      `json:"records"`
	Decoded       int      `json:"decoded"`
	Unresolved    int      `json:"unresolved"`
	UnresolvedIDs []uint32 `json:"unresolved_ids,omitempty"`
}

// Decode builds the table for records in file order. Records whose frame id
// is unknown keep their timestamp and contribute no values. Columns absent
// on every row are dropped before returning.
func Decode(db Resolver, records []trace.Record) (*Table, Stats) {
	names := db.SignalNames()
	table := &Table{
		Timestamps: make([]float64, len(records)),
		Columns:    make([]Column, len(names)),
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		table.Columns[i] = Column{Name: name, Values: make([]*float64, len(records))}
		index[name] = i
	}

	stats := Stats{Records: len(records)}
	missing := make(map[uint32]struct{})

	for row, rec := range records {
		table.Timestamps[row] = rec.Timestamp

		msg, ok := db.Lookup(rec.ID)
		if !ok {
			stats.Unresolved++
			missing[rec.ID] = struct{}{}
			continue
		}
		stats.Decoded++

		for name, value := range msg.Decode(rec.Data) {
			col, ok := index[name]
			if !ok {
				continue
			}
			v := value
			table.Columns[col].Values[row] = &v
		}
	}

	for id := range missing {
		stats.UnresolvedIDs = append(stats.UnresolvedIDs, id)
	}
	sort.Slice(stats.UnresolvedIDs, func(i, j int) bool {
		return stats.UnresolvedIDs[i] < stats.UnresolvedIDs[j]
	})

	table.Prune()
	return table, stats
}
