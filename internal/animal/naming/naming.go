// Package naming produces animal identifiers such as "sapi_7" or
// "domba_B-01" from an ordinal position within the animal's type.
package naming

import (
	"fmt"

	"github.com/fekuna/qurban-engine/internal/model"
)

const DefaultGroupSize = 50

// Name returns the identifier for the animal at ordinal
// totalAssigned+indexInBatch of its type. explicitGroup, when non-empty,
// replaces the computed group letter.
func Name(t *model.AnimalType, totalAssigned, indexInBatch, groupSize int, explicitGroup string) string {
	ordinal := totalAssigned + indexInBatch
	if !t.IsGrouped() {
		return fmt.Sprintf("%s_%d", t.Name, ordinal+1)
	}

	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	group := explicitGroup
	if group == "" {
		group = GroupLabel(ordinal / groupSize)
	}
	return fmt.Sprintf("%s_%s-%02d", t.Name, group, 1+ordinal%groupSize)
}

// GroupLabel converts a zero-based group index to A..Z, AA, AB, ...
func GroupLabel(index int) string {
	if index < 0 {
		index = 0
	}
	label := ""
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		label = string(rune('A'+(n-1)%26)) + label
	}
	return label
}

// Batch precomputes n consecutive identifiers starting at firstOrdinal.
func Batch(t *model.AnimalType, firstOrdinal, n, groupSize int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Name(t, firstOrdinal, i, groupSize, "")
	}
	return out
}
