package brackets

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	// Bye is the placeholder opponent that pads an odd field.
	Bye = "BYE"
	// MatchSize is the number of players in a head-to-head match.
	MatchSize = 2
)

// Partition splits participants into consecutive groups of matchSize,
// preserving order. A trailing group shorter than matchSize is dropped:
// only full groups become matches. Callers that need every player placed
// pad with FillWithBye first.
func Partition(participants []string, matchSize int) [][]string {
	if matchSize <= 0 {
		matchSize = MatchSize
	}
	full := len(participants) / matchSize
	groups := make([][]string, 0, full)
	for i := 0; i < full; i++ {
		group := make([]string, matchSize)
		copy(group, participants[i*matchSize:(i+1)*matchSize])
		groups = append(groups, group)
	}
	return groups
}

// Unpaired returns the tail that Partition drops.
func Unpaired(participants []string, matchSize int) []string {
	if matchSize <= 0 {
		matchSize = MatchSize
	}
	rest := len(participants) % matchSize
	if rest == 0 {
		return nil
	}
	out := make([]string, rest)
	copy(out, participants[len(participants)-rest:])
	return out
}

// FillWithBye appends a single Bye when the count is odd and no Bye is
// present yet. The input slice is never modified.
func FillWithBye(participants []string) []string {
	out := make([]string, len(participants), len(participants)+1)
	copy(out, participants)
	if len(out)%2 == 0 {
		return out
	}
	for _, p := range out {
		if p == Bye {
			return out
		}
	}
	return append(out, Bye)
}

// IsByePair reports whether a partitioned pair has the Bye placeholder.
func IsByePair(pair []string) bool {
	for _, p := range pair {
		if p == Bye {
			return true
		}
	}
	return false
}

// soloOf returns the real player of a bye pair.
func soloOf(pair []string) string {
	for _, p := range pair {
		if p != Bye {
			return p
		}
	}
	return ""
}

// MatchID is deterministic so re-emitting a round produces the same ids.
func MatchID(tournamentID string, round, index int) string {
	return fmt.Sprintf("%s-r%d-m%d", tournamentID, round, index)
}

var matchIDPattern = regexp.MustCompile(`^(.+)-r(\d+)-m(\d+)$`)

// ParseMatchID splits an id produced by MatchID.
func ParseMatchID(matchID string) (tournamentID string, round, index int, ok bool) {
	parts := matchIDPattern.FindStringSubmatch(matchID)
	if parts == nil {
		return "", 0, 0, false
	}
	round, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}
	index, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, 0, false
	}
	return parts[1], round, index, true
}
