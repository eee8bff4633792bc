package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/model"
)

func TestParseJobUpdate(t *testing.T) {
	req, fields, err := model.ParseJobUpdate([]byte(`{"status":"completed","summary":"all done"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "summary"}, fields)
	require.NotNil(t, req.Status)
	assert.Equal(t, model.JobCompleted, *req.Status)
	require.NotNil(t, req.Summary)
	assert.Equal(t, "all done", *req.Summary)
}

func TestParseJobUpdateReportsAllFieldNames(t *testing.T) {
	// Unknown fields survive into the field list so authorization can name
	// them, even though they never land on the request struct.
	req, fields, err := model.ParseJobUpdate([]byte(`{"title":"sneaky","status":"queued"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "title"}, fields)
	require.NotNil(t, req.Status)
}

func TestParseJobUpdateEmpty(t *testing.T) {
	req, fields, err := model.ParseJobUpdate([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, fields)
	assert.True(t, req.Empty())
}

func TestParseJobUpdateMalformed(t *testing.T) {
	_, _, err := model.ParseJobUpdate([]byte(`{"status":`))
	assert.Error(t, err)
}

func TestParseApprovalAction(t *testing.T) {
	action, err := model.ParseApprovalAction("approve")
	require.NoError(t, err)
	assert.Equal(t, model.ActionApprove, action)

	action, err = model.ParseApprovalAction("changes_requested")
	require.NoError(t, err)
	assert.Equal(t, model.ActionRequestChanges, action)

	_, err = model.ParseApprovalAction("reject")
	assert.Error(t, err)
	_, err = model.ParseApprovalAction("")
	assert.Error(t, err)
}

func TestApprovalDecided(t *testing.T) {
	assert.False(t, model.Approval{Status: model.ApprovalPending}.Decided())
	assert.True(t, model.Approval{Status: model.ApprovalApproved}.Decided())
	assert.True(t, model.Approval{Status: model.ApprovalChangesRequested}.Decided())
}

func TestReportEventRequestValidate(t *testing.T) {
	assert.Error(t, model.ReportEventRequest{}.Validate())
	assert.NoError(t, model.ReportEventRequest{EventType: "task_started"}.Validate())

	long := strings.Repeat("x", model.MaxEventTypeLen+1)
	assert.Error(t, model.ReportEventRequest{EventType: long}.Validate())
}

func TestReportUsageRequestValidate(t *testing.T) {
	valid := model.ReportUsageRequest{Provider: "anthropic", Model: "claude-sonnet"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, model.ReportUsageRequest{Model: "m"}.Validate())
	assert.Error(t, model.ReportUsageRequest{Provider: "p"}.Validate())

	negative := valid
	negative.TokensIn = -1
	assert.Error(t, negative.Validate())
}
