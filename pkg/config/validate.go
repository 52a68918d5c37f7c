package config

import (
	"fmt"
)

// Validator is implemented by every option set that can check itself.
type Validator interface {
	Validate() []error
}

// Validate collects the errors of all option sets. Nil sets are skipped.
func Validate(vs ...Validator) []error {
	var out []error
	for _, v := range vs {
		if v == nil {
			continue
		}
		out = append(out, v.Validate()...)
	}
	return out
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d not in [1, 65535]", port)
	}
	return nil
}
