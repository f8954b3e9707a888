package connector

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Dialects maps a database.driver value to its dialect constructor.
type Dialects map[string]func() Dialect

// Lookup builds a fresh dialect for driver.
func (d Dialects) Lookup(driver string) (Dialect, error) {
	newDialect, ok := d[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database.driver %q (supported: %s)",
			driver, strings.Join(d.Names(), ", "))
	}
	return newDialect(), nil
}

// Names returns the supported drivers in sorted order.
func (d Dialects) Names() []string {
	return slices.Sorted(maps.Keys(d))
}
