package result

import (
	"fmt"
	"sort"
)

const tallyTotal = "total"

// SortedData stores the key/value to be sorted.
type SortedData struct {
	Key   string
	Value int
}

// SubteamTally counts records per subteam, with the overall count stored
// under "total".
type SubteamTally map[string]int

func NewSubteamTally(records []CaseRecord) SubteamTally {
	st := make(SubteamTally, len(records))
	st[tallyTotal] = 0
	for _, r := range records {
		st.Add(r.Subteam)
	}
	return st
}

// Add increments the subteam counter and the total.
func (st SubteamTally) Add(subteam string) {
	st[subteam] += 1
	st[tallyTotal] += 1
}

// Ranked returns the subteams by count, highest first, ties by name.
func (st SubteamTally) Ranked() []SortedData {
	out := make([]SortedData, 0, len(st))
	for k, v := range st {
		if k == tallyTotal {
			continue
		}
		out = append(out, SortedData{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ShowSorted return an string with the rank of subteams.
func (st SubteamTally) ShowSorted() string {
	msg := fmt.Sprintf("[%v=%v]", tallyTotal, st[tallyTotal])
	for _, k := range st.Ranked() {
		msg = fmt.Sprintf("%s [%v=%s]", msg, k.Key, CalcPercStr(int64(k.Value), int64(st[tallyTotal])))
	}
	return msg
}

// CalcPercStr receives the numerator and denominator and return the numerator and percentage as string.
func CalcPercStr(num, den int64) string {
	if den == 0 {
		return fmt.Sprintf("%d (0.00%%)", num)
	}
	return fmt.Sprintf("%d (%.2f%%)", num, (float64(num)/float64(den))*100)
}
