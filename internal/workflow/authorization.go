package workflow

import "bytes"

var authorizationMarkers = [][]byte{
	[]byte("<cStat>100</cStat>"),
	[]byte("autorizado"),
	[]byte("Autorizado"),
}

// IsAuthorized reports whether a processed artifact carries an authorization
// marker. The match is a plain substring test, not an XML parse.
func IsAuthorized(content []byte) bool {
	for _, marker := range authorizationMarkers {
		if bytes.Contains(content, marker) {
			return true
		}
	}
	return false
}
