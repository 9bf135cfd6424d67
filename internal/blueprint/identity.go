package blueprint

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

// assignIDs gives every container an ID derived from its content hash and the
// rank of its refID among the containers sharing that hash. References to one
// container share an ID; independent containers with equal content do not.
func assignIDs(containers []*Container) error {
	hashes := make(map[*Container]string, len(containers))
	for _, c := range containers {
		h, err := c.hash()
		if err != nil {
			return stageErr(StageValidate, err)
		}
		hashes[c] = h
	}

	ranks := lo.MapValues(
		lo.GroupBy(containers, func(c *Container) string { return hashes[c] }),
		func(group []*Container, _ string) []int {
			refIDs := lo.Uniq(lo.Map(group, func(c *Container, _ int) int { return c.refID }))
			slices.Sort(refIDs)
			return refIDs
		},
	)

	for _, c := range containers {
		h := hashes[c]
		sum := sha1.Sum([]byte(h + strconv.Itoa(slices.Index(ranks[h], c.refID))))
		c.id = hex.EncodeToString(sum[:])
	}
	return nil
}
