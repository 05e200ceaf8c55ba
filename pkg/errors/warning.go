package errors

// Warning is a non-fatal outcome returned next to a successful result.
type Warning struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func NewWarning(code Code, message string) Warning {
	return Warning{
		Code:      code,
		Message:   message,
		Retryable: MetadataFor(code).Retryable,
	}
}

// IsCode reports whether err carries the given typed code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
