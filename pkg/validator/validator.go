package validator

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

// CustomValidator wraps the validator instance for Echo.
type CustomValidator struct {
	validator  *validator.Validate
	translator ut.Translator
}

func New() *CustomValidator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := field.Tag.Get("json")
		if tag == "" {
			return field.Name
		}

		name := strings.SplitN(tag, ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic("failed to register validator default translations: " + err.Error())
	}

	if err := registerDomainTags(validate, trans); err != nil {
		panic("failed to register domain validations: " + err.Error())
	}

	return &CustomValidator{
		validator:  validate,
		translator: trans,
	}
}

type domainTag struct {
	tag     string
	fn      validator.Func
	message string
}

var domainTags = []domainTag{
	{
		tag: "duration",
		fn: func(fl validator.FieldLevel) bool {
			_, err := time.ParseDuration(fl.Field().String())
			return err == nil
		},
		message: "{0} must be a duration such as 90s, 5m or 1h30m",
	},
	{
		tag: "campaign_status",
		fn: func(fl validator.FieldLevel) bool {
			return domain.CampaignStatus(fl.Field().String()).Valid()
		},
		message: "{0} must be one of DRAFT, SCHEDULED, RUNNING, COMPLETED, CANCELLED",
	},
	{
		tag: "campaign_type",
		fn: func(fl validator.FieldLevel) bool {
			t := domain.CampaignType(fl.Field().String())
			return t == domain.CampaignOutbound || t == domain.CampaignInbound
		},
		message: "{0} must be OUTBOUND or INBOUND",
	},
	{
		tag: "lead_status",
		fn: func(fl validator.FieldLevel) bool {
			return domain.LeadStatus(fl.Field().String()).Valid()
		},
		message: "{0} must be a known lead status",
	},
	{
		tag: "filter_status",
		fn: func(fl validator.FieldLevel) bool {
			return domain.LeadStatus(fl.Field().String()).Filterable()
		},
		message: "{0} must be QUEUED or NEED_RETRY",
	},
	{
		tag: "template_status",
		fn: func(fl validator.FieldLevel) bool {
			return domain.TemplateStatus(fl.Field().String()).Valid()
		},
		message: "{0} must be one of DRAFT, ACTIVE, ARCHIVED",
	},
}

// registerDomainTags adds the enum and duration tags used by request DTOs,
// each with an English message.
func registerDomainTags(v *validator.Validate, trans ut.Translator) error {
	for _, dt := range domainTags {
		if err := v.RegisterValidation(dt.tag, dt.fn); err != nil {
			return err
		}

		tag, message := dt.tag, dt.message
		if err := v.RegisterTranslation(tag, trans,
			func(t ut.Translator) error {
				return t.Add(tag, message, true)
			},
			func(t ut.Translator, fe validator.FieldError) string {
				msg, _ := t.T(tag, fe.Field())
				return msg
			},
		); err != nil {
			return err
		}
	}
	return nil
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{
				Errors: cv.translateErrors(validationErrors),
			}
		}
		return err
	}
	return nil
}

func (cv *CustomValidator) translateErrors(errs validator.ValidationErrors) map[string]string {
	errors := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		errors[field] = err.Translate(cv.translator)
	}
	return errors
}

type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	var messages []string
	for field, msg := range e.Errors {
		messages = append(messages, field+": "+msg)
	}
	return strings.Join(messages, "; ")
}

type ValidationErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func HandleValidationError(c echo.Context, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			Success: false,
			Error:   "Validation failed",
			Details: ve.Errors,
		})
	}
	return c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}
