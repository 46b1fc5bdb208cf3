package html

import "fmt"

// UnsupportedSelectorError is returned when the selector engine cannot
// evaluate a selector, e.g. unknown pseudo-classes or pseudo-elements.
type UnsupportedSelectorError struct {
	Selector string
	Err      error
}

func (e *UnsupportedSelectorError) Error() string {
	return fmt.Sprintf("unsupported selector %q: %v", e.Selector, e.Err)
}

func (e *UnsupportedSelectorError) Unwrap() error {
	return e.Err
}
