package validate

import (
	"strconv"
	"strings"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string { // error interface
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Helpers
func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func Digits(field, value string) *ErrField {
	if value == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return &ErrField{Field: field, Msg: "digits only"}
		}
	}
	return nil
}

func Length(field, value string, min, max int) *ErrField {
	if len(value) < min || len(value) > max {
		if min == max {
			return &ErrField{Field: field, Msg: "must have exactly " + strconv.Itoa(min) + " digits"}
		}
		return &ErrField{Field: field, Msg: "must have between " + strconv.Itoa(min) + " and " + strconv.Itoa(max) + " digits"}
	}
	return nil
}
