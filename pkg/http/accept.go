package http

import (
	"net/http"
	"sort"

	"github.com/golang/gddo/httputil/header"
)

// negotiateContentType picks the content type to answer r with, from
// offered, which is in order of our preference. Without an Accept
// header we answer with our first preference; otherwise the highest
// quality (`q`) match wins, with ties going to our preference. No
// match gives "".
func negotiateContentType(r *http.Request, offered []string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return offered[0]
	}

	var acceptable []header.AcceptSpec
	for _, spec := range specs {
		if rank(offered, spec.Value) < len(offered) {
			acceptable = append(acceptable, spec)
		}
	}
	if len(acceptable) == 0 {
		return ""
	}
	sort.SliceStable(acceptable, func(i, j int) bool {
		if acceptable[i].Q != acceptable[j].Q {
			return acceptable[i].Q > acceptable[j].Q
		}
		return rank(offered, acceptable[i].Value) < rank(offered, acceptable[j].Value)
	})
	return acceptable[0].Value
}

// rank gives the position of value in offered, or len(offered) if it
// is not there, so that unknown types sort last.
func rank(offered []string, value string) int {
	for i, s := range offered {
		if s == value {
			return i
		}
	}
	return len(offered)
}
