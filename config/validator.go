package config

// Validator implemented by every config section
type Validator interface {
	Validate() error
}

// ValidateAll stops at the first failing section.
func ValidateAll(sections map[string]Validator) error {
	names := sortedNames(sections)
	for _, name := range names {
		if err := sections[name].Validate(); err != nil {
			return ErrInvalid.WithData("section", name).WithMsgf("invalid configuration: %s", name).Wrap(err)
		}
	}
	return nil
}
