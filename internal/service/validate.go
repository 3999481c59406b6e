package service

import (
	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateMsg checks the validate tags of a request message.
func validateMsg(msg any) error {
	if err := validate.Struct(msg); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}
