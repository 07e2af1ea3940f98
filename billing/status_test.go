package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/salary-engine/billing"
)

// =============================================================================
// STATUS MACHINE TESTS
// =============================================================================

func TestTransition_PermittedEdges(t *testing.T) {
	cases := []struct {
		from    billing.Status
		trigger billing.Trigger
		want    billing.Status
	}{
		{billing.StatusDraft, billing.TriggerPublish, billing.StatusPublished},
		{billing.StatusDraft, billing.TriggerArchive, billing.StatusArchived},
		{billing.StatusPublished, billing.TriggerMarkPaid, billing.StatusPaid},
		{billing.StatusPublished, billing.TriggerArchive, billing.StatusArchived},
	}
	for _, tc := range cases {
		got, err := billing.Transition(tc.from, tc.trigger)
		require.NoError(t, err, "%s + %s", tc.from, tc.trigger)
		assert.Equal(t, tc.want, got)
	}
}

func TestTransition_RejectedEdges(t *testing.T) {
	// Paid is terminal; drafts cannot be paid before publishing;
	// archived invoices never come back.
	cases := []struct {
		from    billing.Status
		trigger billing.Trigger
	}{
		{billing.StatusDraft, billing.TriggerMarkPaid},
		{billing.StatusPaid, billing.TriggerPublish},
		{billing.StatusPaid, billing.TriggerMarkPaid},
		{billing.StatusPaid, billing.TriggerArchive},
		{billing.StatusArchived, billing.TriggerPublish},
		{billing.StatusArchived, billing.TriggerMarkPaid},
		{billing.StatusArchived, billing.TriggerArchive},
		{billing.StatusPublished, billing.TriggerPublish},
	}
	for _, tc := range cases {
		got, err := billing.Transition(tc.from, tc.trigger)

		var transitionErr *billing.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr, "%s + %s should be rejected", tc.from, tc.trigger)
		assert.Equal(t, tc.from, got, "status must not move on a rejected edge")
		assert.Equal(t, tc.from, transitionErr.From)
	}
}

func TestTransition_ErrorsReadAsSentences(t *testing.T) {
	_, err := billing.Transition(billing.StatusPaid, billing.TriggerMarkPaid)
	require.Error(t, err)
	assert.Equal(t, "cannot mark paid a paid invoice", err.Error())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, billing.CanTransition(billing.StatusDraft, billing.TriggerPublish))
	assert.False(t, billing.CanTransition(billing.StatusPaid, billing.TriggerArchive))
}

func TestCanMutate_OnlyDraftAndPublished(t *testing.T) {
	assert.True(t, billing.CanMutate(billing.StatusDraft))
	assert.True(t, billing.CanMutate(billing.StatusPublished))
	assert.False(t, billing.CanMutate(billing.StatusPaid))
	assert.False(t, billing.CanMutate(billing.StatusArchived))
}

func TestStatusValid(t *testing.T) {
	for _, s := range billing.Statuses {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, billing.Status("deleted").Valid())
}
