package result

import (
	"regexp"
	"sort"
)

// Source: https://github.com/openshift/release/blob/master/core-services/prow/02_config/_config.yaml#L84
var CommonErrorPatterns = []string{
	`error:`,
	`Failed to push image`,
	`Failed`,
	`timed out`,
	`'ERROR:'`,
	`ERRO\[`,
	`^error:`,
	`(^FAIL|FAIL: |Failure \[)\b`,
	`panic(\.go)?:`,
	`"level":"error"`,
	`level=error`,
	`level":"fatal"`,
	`level=fatal`,
	`│ Error:`,
	`client connection lost`,
}

// FailureSignals counts error pattern occurrences in failure output, indexed
// by pattern.
type FailureSignals map[string]int

func NewFailureSignals(buf string, patterns []string) FailureSignals {
	total := 0
	counters := make(FailureSignals, len(patterns)+2)

	all := append(append([]string{}, patterns...), `error`)
	for _, errName := range all {
		reErr := regexp.MustCompile(errName)
		if matches := reErr.FindAllStringIndex(buf, -1); len(matches) != 0 {
			counters[errName] += len(matches)
			total += len(matches)
		}
	}

	if total == 0 {
		return nil
	}
	counters[tallyTotal] = total
	return counters
}

func MergeFailureSignals(fs1, fs2 FailureSignals) FailureSignals {
	merged := make(FailureSignals, len(fs1)+len(fs2))
	for k, v := range fs1 {
		merged[k] += v
	}
	for k, v := range fs2 {
		merged[k] += v
	}
	return merged
}

// RecordSignals merges the signals of every failed record.
func RecordSignals(records []CaseRecord) FailureSignals {
	var all FailureSignals
	for _, r := range records {
		if r.Outcome != OutcomeFail || len(r.Case.Failures) == 0 {
			continue
		}
		all = MergeFailureSignals(all, NewFailureSignals(r.Case.FailureText(), CommonErrorPatterns))
	}
	return all
}

// Top returns up to n patterns with the most matches.
func (fs FailureSignals) Top(n int) []SortedData {
	out := make([]SortedData, 0, len(fs))
	for k, v := range fs {
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
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
