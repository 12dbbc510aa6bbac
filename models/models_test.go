package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusGraph(t *testing.T) {
	allStatuses := []ModuleStatus{
		StatusNotStarted, StatusInQueue, StatusInProgress, StatusQCHold,
		StatusRework, StatusCompleted, StatusStaged, StatusShipped,
	}

	allowed := map[ModuleStatus]map[ModuleStatus]bool{
		StatusNotStarted: {StatusInQueue: true, StatusInProgress: true},
		StatusInQueue:    {StatusInProgress: true, StatusNotStarted: true},
		StatusInProgress: {StatusQCHold: true, StatusCompleted: true, StatusInQueue: true, StatusRework: true},
		StatusQCHold:     {StatusInProgress: true, StatusRework: true, StatusCompleted: true},
		StatusRework:     {StatusInProgress: true, StatusInQueue: true, StatusQCHold: true},
		StatusCompleted:  {StatusStaged: true, StatusShipped: true},
		StatusStaged:     {StatusShipped: true, StatusCompleted: true},
		StatusShipped:    {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equalf(t, allowed[from][to], from.CanTransitionTo(to),
				"%s -> %s", from, to)
		}
	}
}

func TestShippedIsTerminal(t *testing.T) {
	assert.Empty(t, StatusTransitions[StatusShipped])
}

func TestInspectionRequired(t *testing.T) {
	byFlag := StationTemplate{OrderNum: 2, RequiresInspection: true}
	assert.True(t, byFlag.InspectionRequired())

	byPosition := StationTemplate{OrderNum: 5}
	assert.True(t, byPosition.InspectionRequired())

	neither := StationTemplate{OrderNum: 2}
	assert.False(t, neither.InspectionRequired())
}

func TestValidationResultChaining(t *testing.T) {
	res := Invalid(CodeStationSkipped, "move to %s would skip stations", "Finishes").
		WithDetail("current_order", 1).
		WithDetail("target_order", 4)

	assert.False(t, res.Valid)
	assert.Equal(t, CodeStationSkipped, res.Code)
	assert.Equal(t, "move to Finishes would skip stations", res.Message)
	assert.Equal(t, 1, res.Details["current_order"])
	assert.Equal(t, 4, res.Details["target_order"])

	ok := ValidOK()
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Code)
}

func TestDecodePayload(t *testing.T) {
	action := PendingAction{
		ID:         "a-1",
		ActionType: ActionQCSubmit,
		Payload:    `{"module_id":3,"station_id":2,"inspector_id":9,"passed":false,"rework_required":true}`,
	}

	var payload QCSubmitPayload
	assert.NoError(t, action.DecodePayload(&payload))
	assert.Equal(t, 3, payload.ModuleID)
	assert.False(t, payload.Passed)
	assert.True(t, payload.ReworkRequired)

	bad := PendingAction{ID: "a-2", ActionType: ActionClockIn, Payload: "not json"}
	var clockIn ClockInPayload
	assert.Error(t, bad.DecodePayload(&clockIn))
}
