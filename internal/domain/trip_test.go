package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymark-app/waymark/internal/domain"
)

var allStatuses = []domain.Status{
	domain.StatusPlanned,
	domain.StatusActive,
	domain.StatusOverdue,
	domain.StatusOverdueNotified,
	domain.StatusCompleted,
	domain.StatusCancelled,
}

func TestParseStatus(t *testing.T) {
	for _, st := range allStatuses {
		assert.Equal(t, st, domain.ParseStatus(string(st)))
	}
	assert.Equal(t, domain.StatusUnknown, domain.ParseStatus("paused"))
	assert.Equal(t, domain.StatusUnknown, domain.ParseStatus(""))
}

func TestStatus_UnmarshalJSON_UnknownCollapses(t *testing.T) {
	var trip domain.TripRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"status":"hibernating"}`), &trip))
	assert.Equal(t, domain.StatusUnknown, trip.Status)

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"status":"overdue"}`), &trip))
	assert.Equal(t, domain.StatusOverdue, trip.Status)
}

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status     domain.Status
		inProgress bool
		terminal   bool
		notified   bool
	}{
		{domain.StatusPlanned, true, false, false},
		{domain.StatusActive, true, false, false},
		{domain.StatusOverdue, true, false, false},
		{domain.StatusOverdueNotified, true, false, true},
		{domain.StatusCompleted, false, true, false},
		{domain.StatusCancelled, false, true, false},
		{domain.StatusUnknown, false, false, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.inProgress, tc.status.InProgress(), "InProgress(%s)", tc.status)
		assert.Equal(t, tc.terminal, tc.status.Terminal(), "Terminal(%s)", tc.status)
		assert.Equal(t, tc.notified, tc.status.ContactsNotified(), "ContactsNotified(%s)", tc.status)
	}
}
