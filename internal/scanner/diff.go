package scanner

import (
	"sort"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
)

// Diff classifies one horizon's scan against the previous cycle's tickers.
// Every row is minimal on purpose: ticker, horizon, action, time. The
// journal gets the full picture each cycle (ADDED, REMOVED, MAINTAINED) so
// an auditor can replay membership without reconstructing set algebra from
// edges alone.
func Diff(current *contracts.CandidateList, previous []string, at time.Time, cycleID string) []contracts.ScanDiffEntry {
	prevSet := make(map[string]struct{}, len(previous))
	for _, t := range previous {
		prevSet[t] = struct{}{}
	}

	entries := make([]contracts.ScanDiffEntry, 0, len(current.Candidates)+len(previous))

	// Candidates arrive sorted, so ADDED and MAINTAINED rows are already
	// deterministic.
	for _, c := range current.Candidates {
		action := contracts.ActionAdded
		if _, seen := prevSet[c.Ticker]; seen {
			action = contracts.ActionMaintained
		}
		entries = append(entries, contracts.ScanDiffEntry{
			Ticker:  c.Ticker,
			Horizon: current.Horizon,
			Action:  action,
			At:      at,
			CycleID: cycleID,
		})
	}

	removed := make([]string, 0)
	for _, t := range previous {
		if !current.Contains(t) {
			removed = append(removed, t)
		}
	}
	sort.Strings(removed)
	for _, t := range removed {
		entries = append(entries, contracts.ScanDiffEntry{
			Ticker:  t,
			Horizon: current.Horizon,
			Action:  contracts.ActionRemoved,
			At:      at,
			CycleID: cycleID,
		})
	}

	return entries
}
