package validator

import (
	"testing"

	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ScanRequest(t *testing.T) {
	v := New(logger.Nop())

	tests := []struct {
		name    string
		req     model.ScanRequest
		wantErr bool
	}{
		{name: "person barcode", req: model.ScanRequest{Token: "2023001"}},
		{name: "accession number with person", req: model.ScanRequest{Token: "ACC001234", PersonID: "p-1"}},
		{name: "empty token", req: model.ScanRequest{}, wantErr: true},
		{name: "scanner line ending", req: model.ScanRequest{Token: "2023001\r\n"}},
		{name: "leading space", req: model.ScanRequest{Token: " 2023001"}},
		{name: "spaced isbn", req: model.ScanRequest{Token: "978 0 306 40615 7"}},
		{name: "whitespace only", req: model.ScanRequest{Token: " \r\n"}, wantErr: true},
		{name: "interior control character", req: model.ScanRequest{Token: "LAPTOP\x07001"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	v := New(logger.Nop())

	err := v.Validate(&model.ReserveRequest{PersonID: "p-1"})

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "equipment_id", verrs[0].Field)
	assert.Equal(t, "equipment_id is required", verrs[0].Message)
}

func TestValidate_SubscriptionMessage(t *testing.T) {
	v := New(logger.Nop())

	assert.NoError(t, v.Validate(&model.SubscriptionMessage{Op: "subscribe", ResourceID: "LAPTOP001"}))
	assert.NoError(t, v.Validate(&model.SubscriptionMessage{Op: "subscribe"}))
	assert.NoError(t, v.Validate(&model.SubscriptionMessage{Op: "auth", Token: "abc"}))
	assert.Error(t, v.Validate(&model.SubscriptionMessage{Op: "auth"}))
	assert.Error(t, v.Validate(&model.SubscriptionMessage{Op: "publish"}))
}

func TestValidate_BookCopies(t *testing.T) {
	v := New(logger.Nop())

	ok := model.Book{AccessionNumber: "ACC001234", Title: "Dune", TotalCopies: 2, AvailableCopies: 2}
	assert.NoError(t, v.Validate(&ok))

	bad := ok
	bad.AvailableCopies = 3
	assert.Error(t, v.Validate(&bad))
}

func TestValidateRequest_ReturnsValidationAppError(t *testing.T) {
	v := New(logger.Nop())

	err := v.ValidateRequest(&model.CheckoutRequest{BookID: "b-1"}, "checkout request")

	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, "Invalid checkout request", appErr.Message)
	assert.Equal(t, "person_id is required", appErr.Details["person_id"])
}
