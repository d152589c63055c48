package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

func init() {
	Validate = validator.New()

	// boş ve sadece boşluktan oluşan metinleri reddeder
	_ = Validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// kasa terminali kimliği: harf, rakam, '-' ve '_'
	_ = Validate.RegisterValidation("terminal", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || len(s) > 64 {
			return false
		}
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
		return true
	})
}

// Message ilk doğrulama hatasını kullanıcıya gösterilecek kısa metne çevirir.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Geçersiz istek"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s alanı zorunlu", fe.Field())
	case "email":
		return fmt.Sprintf("%s geçerli bir email olmalı", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s en az %s olmalı", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s en fazla %s olmalı", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s şunlardan biri olmalı: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s geçersiz", fe.Field())
}
