package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Pairing is one head-to-head fixture in a round.
type Pairing struct {
	Round       int       `json:"round"`
	Players     [2]string `json:"players"`
	JoiningCode string    `json:"joining_code"`
}

// GenerateFixtures schedules rounds of pairings with the circle method.
// participants[0] stays fixed while everyone else rotates one seat per round,
// so no pair repeats until all len(participants)-1 rounds have been played.
// Pairings come back flattened in round order.
func GenerateFixtures(participants []string, rounds int) ([]Pairing, error) {
	n := len(participants)
	if n == 0 || n%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddParticipantCount, n)
	}
	if rounds < 1 {
		return nil, fmt.Errorf("rounds must be at least 1, got %d", rounds)
	}

	half := n / 2
	left := append([]string(nil), participants[:half]...)
	right := append([]string(nil), participants[half:]...)

	pairings := make([]Pairing, 0, rounds*half)
	for round := 1; round <= rounds; round++ {
		for j := 0; j < half; j++ {
			pairings = append(pairings, Pairing{
				Round:       round,
				Players:     [2]string{left[j], right[j]},
				JoiningCode: JoiningCode(round, left[j], right[j]),
			})
		}
		left, right = rotate(left, right)
	}
	return pairings, nil
}

// rotate moves every seat but left[0] one step around the table.
func rotate(left, right []string) ([]string, []string) {
	if len(left) < 2 {
		return left, right
	}
	head := right[0]
	nextLeft := make([]string, 0, len(left))
	nextLeft = append(nextLeft, left[0], head)
	nextLeft = append(nextLeft, left[1:len(left)-1]...)
	nextRight := make([]string, 0, len(right))
	nextRight = append(nextRight, right[1:]...)
	nextRight = append(nextRight, left[len(left)-1])
	return nextLeft, nextRight
}

// JoiningCode is a 6 character code for one fixture. Player order does not
// matter; the round number keeps rematches in later rounds distinct.
func JoiningCode(round int, a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(ids[0] + ":" + ids[1] + ":" + strconv.Itoa(round)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}
