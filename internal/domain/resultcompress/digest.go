package resultcompress

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// xxhashHex renders xxhash64(buf) as a 12-hex-character digest for the
// alias table. xxhash is used rather than sha256 because this digest is
// purely an internal cache handle, not a value exposed for integrity
// checking, and xxhash is cheaper at this call frequency.
func xxhashHex(buf []byte) string {
	sum := xxhash.Sum64(buf)
	return fmt.Sprintf("%012x", sum&0xFFFFFFFFFFFF)
}
