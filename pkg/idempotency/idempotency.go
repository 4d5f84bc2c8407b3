// Package idempotency extracts client-supplied idempotency keys. The
// checkout endpoint uses the header form; webhook processing keys on the
// processor's session id instead and never consults this header.
package idempotency

import (
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}
