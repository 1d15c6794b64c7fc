package custom_errors

import "errors"

// ValidationError collects every option failure raised while building a
// BotConfig, so the caller sees all misconfigurations at once instead of
// fixing them one restart at a time.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (v *ValidationError) Add(err error) {
	v.Errors = append(v.Errors, err)
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return errors.Join(v.Errors...).Error()
}

func (v *ValidationError) Unwrap() []error {
	return v.Errors
}
