package models

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations hooks the dispatch-specific rules into gin's binding
// validator. Call once at startup, before the router handles requests.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterStructValidation(endTripCoordinates, EndTripRequest{})
}

// endTripCoordinates requires end_lat and end_lon to be given together.
func endTripCoordinates(sl validator.StructLevel) {
	req := sl.Current().Interface().(EndTripRequest)
	if (req.EndLat == nil) != (req.EndLon == nil) {
		sl.ReportError(req.EndLat, "end_lat", "EndLat", "required_with", "end_lon")
	}
}
