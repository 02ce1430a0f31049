package errmap

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wrapshot/agent/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: message is required", domain.ErrInvalidRequest), http.StatusBadRequest, CodeInvalidRequest},
		{fmt.Errorf("%w: \"drop\"", domain.ErrUnknownTool), http.StatusBadRequest, CodeUnknownTool},
		{fmt.Errorf("%w: cf_1", domain.ErrConfirmationNotFound), http.StatusNotFound, CodeConfirmationNotFound},
		{fmt.Errorf("%w: cf_1 is approved", domain.ErrConfirmationResolved), http.StatusConflict, CodeConfirmationResolved},
		{fmt.Errorf("%w: cf_1", domain.ErrConfirmationExpired), http.StatusGone, CodeConfirmationExpired},
		{fmt.Errorf("%w: cf_1", domain.ErrConfirmationForbidden), http.StatusForbidden, CodeForbidden},
		{fmt.Errorf("%w: timeout", domain.ErrProviderUnavailable), http.StatusBadGateway, CodeProviderUnavailable},
		{fmt.Errorf("save: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{domain.ErrCallBudgetExceeded, http.StatusUnprocessableEntity, CodeCallBudgetExceeded},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := Classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestResponseHidesInternalErrors(t *testing.T) {
	status, body := Response(errors.New("sql: connection string with password"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body.Message)

	_, body = Response(fmt.Errorf("%w: cf_1", domain.ErrConfirmationExpired))
	assert.Equal(t, "confirmation expired: cf_1", body.Message)
}
