package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/MrEthical07/jobAuth/middleware"
)

const maxBodyBytes = 1 << 16

// requestValidator validates payloads and renders failures in English.
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() (*requestValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("register validator translations: %w", err)
	}
	return &requestValidator{validate: v, trans: trans}, nil
}

// check returns a human-readable message for the first failing field, or "".
func (rv *requestValidator) check(v any) string {
	err := rv.validate.Struct(v)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fe.Translate(rv.trans))
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}

// decode reads a JSON body into dst and validates it. It writes the error response
// itself and reports whether the handler should continue.
func (rv *requestValidator) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "malformed JSON body")
		return false
	}
	if msg := rv.check(dst); msg != "" {
		writeBadRequest(w, msg)
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{
		Error: middleware.ErrorDetail{Code: "invalid_input", Message: msg},
	})
}

// decodeLoose reads an optional JSON body without strict field checks.
func decodeLoose(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}
