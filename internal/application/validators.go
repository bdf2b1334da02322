package application

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-recipes/internal/domain"
)

// validate is the shared validator instance with the settings-specific
// tags registered. validator.Validate is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterSettingsValidators(v); err != nil {
		panic(fmt.Sprintf("failed to register settings validators: %v", err))
	}
	return v
}

// RegisterSettingsValidators adds the stagename and datasplit tags to v.
func RegisterSettingsValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("stagename", validateStageName); err != nil {
		return fmt.Errorf("failed to register stagename validator: %w", err)
	}
	if err := v.RegisterValidation("datasplit", validateDataSplit); err != nil {
		return fmt.Errorf("failed to register datasplit validator: %w", err)
	}
	return nil
}

// validateStageName accepts only names from the chef stage vocabulary.
func validateStageName(fl validator.FieldLevel) bool {
	return domain.IsChefStage(fl.Field().String())
}

// validateDataSplit accepts train, test, full and validation.
func validateDataSplit(fl validator.FieldLevel) bool {
	_, err := domain.ParseDataSplit(fl.Field().String())
	return err == nil
}

// validateStruct runs struct validation and converts the result into a
// domain.ValidationError listing every failed field.
func validateStruct(entity string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation failed for %s: %w", entity, err)
	}

	verr := domain.NewValidationError(entity)
	for _, fe := range fieldErrs {
		verr.AddError(describeFieldError(fe))
	}
	return verr
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "stagename":
		return fmt.Sprintf("%s: %q is not a stage (known: %v)", fe.Namespace(), fe.Value(), domain.ChefStages)
	case "datasplit":
		return fmt.Sprintf("%s: %q is not one of train, test, full, validation", fe.Namespace(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s: %v is not one of [%s]", fe.Namespace(), fe.Value(), fe.Param())
	case "unique":
		return fmt.Sprintf("%s: contains duplicates", fe.Namespace())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
	}
}

// maxSuggestionDistance bounds how far a typo may be from a known name for
// it to be offered as a suggestion.
const maxSuggestionDistance = 3

// suggest returns the known name closest to name by edit distance, or ""
// when nothing is close enough. Ties go to the alphabetically first name.
func suggest(name string, known []string) string {
	candidates := slices.Clone(known)
	sort.Strings(candidates)

	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range candidates {
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if bestDist > maxSuggestionDistance || bestDist >= len(name) {
		return ""
	}
	return best
}
