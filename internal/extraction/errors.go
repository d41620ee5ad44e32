package extraction

import "fmt"

// SectionError reports a failure while extracting one section. The section
// is skipped and extraction of the document continues.
type SectionError struct {
	Source  string
	Section int
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("extract section %d of %s: %v", e.Section, e.Source, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }
