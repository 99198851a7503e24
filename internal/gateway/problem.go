package gateway

import "encoding/json"

// problemDetails mirrors the RFC 7807 body the Remote Gateway emits on
// non-2xx responses. Type is a stable URI the engine switches on; it is
// never parsed for structure, only compared.
type problemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

const (
	problemNotFound         = "https://fitsync.dev/problems/not-found"
	problemPermissionDenied = "https://fitsync.dev/problems/permission-denied"
	problemMalformedID      = "https://fitsync.dev/problems/malformed-identifier"
)

func parseProblem(body []byte) (problemDetails, bool) {
	var p problemDetails
	if err := json.Unmarshal(body, &p); err != nil || p.Type == "" {
		return problemDetails{}, false
	}
	return p, true
}
