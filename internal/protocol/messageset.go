package protocol

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// MessageSetStar represents the "*" placeholder (largest UID/sequence
// number in the mailbox) in a message set.
const MessageSetStar uint32 = 0

// EncodeMessageSet renders a sorted, deduplicated list of numbers as the
// compact IMAP sequence-set syntax (consecutive runs collapsed to
// "low:high", singletons written bare, comma-separated).
func EncodeMessageSet(nums []uint32) string {
	if len(nums) == 0 {
		return ""
	}
	sorted := append([]uint32(nil), nums...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	deduped := sorted[:1]
	for _, n := range sorted[1:] {
		if n != deduped[len(deduped)-1] {
			deduped = append(deduped, n)
		}
	}

	var parts []string
	i := 0
	for i < len(deduped) {
		start := deduped[i]
		end := start
		j := i + 1
		for j < len(deduped) && deduped[j] == end+1 {
			end = deduped[j]
			j++
		}
		if start == end {
			parts = append(parts, formatSetNumber(start))
		} else {
			parts = append(parts, formatSetNumber(start)+":"+formatSetNumber(end))
		}
		i = j
	}
	return strings.Join(parts, ",")
}

func formatSetNumber(n uint32) string {
	if n == MessageSetStar {
		return "*"
	}
	return strconv.FormatUint(uint64(n), 10)
}

// DecodeMessageSet expands a compact sequence-set string back into an
// ordered, deduplicated slice of numbers. "*" expands to max if max > 0,
// or is passed through as MessageSetStar (0) when max is 0 (caller
// doesn't know the mailbox size yet).
func DecodeMessageSet(s string, max uint32) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	seen := make(map[uint32]bool)
	var out []uint32
	for _, group := range strings.Split(s, ",") {
		if group == "" {
			return nil, eris.Wrap(ErrProtocol, "empty element in message set "+s)
		}
		bounds := strings.SplitN(group, ":", 2)
		low, err := parseSetNumber(bounds[0], max)
		if err != nil {
			return nil, err
		}
		high := low
		if len(bounds) == 2 {
			high, err = parseSetNumber(bounds[1], max)
			if err != nil {
				return nil, err
			}
		}
		if low > high {
			low, high = high, low
		}
		for n := low; n <= high; n++ {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
			if n == ^uint32(0) {
				break // guard against overflow on a malicious "4294967295:..." bound
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseSetNumber(s string, max uint32) (uint32, error) {
	if s == "*" {
		return max, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, eris.Wrap(ErrProtocol, "invalid message set number "+s)
	}
	return uint32(n), nil
}
