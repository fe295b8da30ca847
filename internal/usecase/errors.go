package usecase

import (
	"errors"
	"fmt"

	"polyaid/internal/domain"
)

// ErrBusy is returned when a send is submitted while another is in flight.
var ErrBusy = errors.New("usecase: a message is already being sent")

const errorPrefix = "Error: "

// errorMessage renders a failure as the system-role bubble shown in the chat.
func errorMessage(err error) domain.Message {
	return domain.NewMessage(domain.RoleSystem, errorPrefix+err.Error())
}

func missingCredentialError(providerKey string) *domain.Error {
	return domain.UnknownError(fmt.Sprintf("API key for %s not found. Add it in settings before sending messages.", providerKey))
}
