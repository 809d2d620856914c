package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
)

// RegisterValidations installs the domain tags on gin's binding engine.
// Call once at startup, before the router serves.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		_, err := model.SlotMinutes(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("tokenstatus", func(fl validator.FieldLevel) bool {
		return model.TokenStatus(fl.Field().String()).Valid()
	})
}
