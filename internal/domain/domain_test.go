package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalDistinguishesAbsentFromZero(t *testing.T) {
	type params struct {
		Name  Optional[string]  `json:"name,omitzero"`
		Pages Optional[float64] `json:"pages,omitzero"`
	}

	var p params
	require.NoError(t, json.Unmarshal([]byte(`{"pages":0}`), &p))
	assert.False(t, p.Name.IsSet())
	pages, ok := p.Pages.Get()
	assert.True(t, ok)
	assert.Equal(t, 0.0, pages)

	var q params
	require.NoError(t, json.Unmarshal([]byte(`{"name":null}`), &q))
	assert.False(t, q.Name.IsSet())
	assert.Equal(t, "fallback", q.Name.OrElse("fallback"))

	out, err := json.Marshal(params{Name: Some("INT. KITCHEN")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"INT. KITCHEN"}`, string(out))
}

func TestSummarizeExecution(t *testing.T) {
	ok := ToolResult{Success: true}
	bad := ToolResult{Success: false, Error: "boom"}
	unverified := &VerificationResult{Verified: false, Discrepancies: []string{"name"}}

	assert.Equal(t, OutcomeSuccess, SummarizeExecution([]ExecutionResultItem{{Result: ok}, {Result: ok}}))
	assert.Equal(t, OutcomePartial, SummarizeExecution([]ExecutionResultItem{{Result: ok}, {Result: bad}}))
	assert.Equal(t, OutcomeFailed, SummarizeExecution([]ExecutionResultItem{{Result: bad}}))
	assert.Equal(t, OutcomeUnverified, SummarizeExecution([]ExecutionResultItem{{Result: ok, Verification: unverified}}))
}

func TestMessageMetadataValidate(t *testing.T) {
	assert.NoError(t, DeclinedMetadata("cf_1").Validate())
	assert.NoError(t, ConfirmationMetadata(&ConfirmationRequest{ConfirmationID: "cf_1"}).Validate())
	assert.NoError(t, AutoCallsMetadata([]AutoToolCall{{ToolName: "get_scenes"}}).Validate())
	assert.NoError(t, ExecutionMetadata("cf_1", nil).Validate())

	mixed := &MessageMetadata{
		Type:           MetadataConfirmationDeclined,
		ConfirmationID: "cf_1",
		Confirmation:   &ConfirmationRequest{},
	}
	assert.ErrorIs(t, mixed.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, (&MessageMetadata{Type: "bogus"}).Validate(), ErrInvalidRequest)
}

func TestTierRequiresConfirmation(t *testing.T) {
	assert.False(t, TierRead.RequiresConfirmation())
	assert.True(t, TierMutate.RequiresConfirmation())
	assert.True(t, TierDestructive.RequiresConfirmation())
	assert.False(t, Tier("admin").Valid())
}
