package common

import (
	"strings"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/extractor"
)

// PlatformUsage is the --platform flag help listing the registered marketplaces.
func PlatformUsage() string {
	platforms := extractor.Platforms()
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, p.String())
	}
	return "marketplace: " + strings.Join(names, ", ")
}
