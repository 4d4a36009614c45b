package widget

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a process-unique widget id.
//
// ULIDs use Crockford base32 (digits and letters only), so the id is safe in
// script identifiers, CSS ids and event names. The "w" prefix keeps it from
// starting with a digit. ulid.Make is monotonic within a process.
func NewID() string {
	return "w" + strings.ToLower(ulid.Make().String())
}
