package evidence

import (
	"fmt"

	"github.com/OneOfOne/xxhash"

	"github.com/stake-plus/osintops/src/shared/osint"
)

// Fingerprint is the deterministic identity of a normalized value within a
// category.
func Fingerprint(category osint.FindingCategory, normalized string) string {
	hash := xxhash.NewS64(0)
	hash.Write([]byte(string(category) + "\x00" + normalized))
	return fmt.Sprintf("%016x", hash.Sum64())
}
