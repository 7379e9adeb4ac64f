// Package mappers übersetzt zwischen den Vokabularen der angebundenen Systeme.
package mappers

import "strings"

// RightsReservedURL is used for every non-empty licence string that is not a known CC licence.
const RightsReservedURL = "https://rightsstatements.org/page/InC/1.0/"

var licenseURLs = map[string]string{
	"cc-by":       "https://creativecommons.org/licenses/by/4.0/",
	"cc-by-nc":    "https://creativecommons.org/licenses/by-nc/4.0/",
	"cc-by-nc-nd": "https://creativecommons.org/licenses/by-nc-nd/4.0/",
	"cc-by-nc-sa": "https://creativecommons.org/licenses/by-nc-sa/4.0/",
	"cc0":         "https://creativecommons.org/publicdomain/zero/1.0/",
}

// MapLicense maps a licence name from a permission API to its canonical URL.
// "" stays "".
func MapLicense(raw string) string {
	if raw == "" {
		return ""
	}
	if url, ok := licenseURLs[strings.ToLower(raw)]; ok {
		return url
	}
	return RightsReservedURL
}
