package service

import (
	"testing"

	"AytoSync/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCheckIntegrity(t *testing.T) {
	participants := []*model.Participant{{Name: "Anna"}, {Name: "Ben"}}
	matchboxes := []*model.Matchbox{
		{ID: 1, Woman: "Anna", Man: "Ben"},
		{ID: 2, Woman: "Clara", Man: ""},
	}
	penalties := []*model.Penalty{
		{ID: 1, ParticipantName: "Ben", Reason: "r", Amount: 100, Date: "2025-01-01"},
		{ID: 2, ParticipantName: "Dan", Reason: "", Amount: 0, Date: "01.01.2025"},
	}

	report := CheckIntegrity(participants, matchboxes, penalties)
	assert.False(t, report.OK)
	assert.Equal(t, []DanglingReference{
		{Entity: "matchboxes", ID: 2, Field: "woman", Value: "Clara"},
		{Entity: "penalties", ID: 2, Field: "participantName", Value: "Dan"},
	}, report.Dangling)

	fields := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		assert.EqualValues(t, 2, v.ID)
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{"reason", "amount", "date"}, fields)
}

func TestCheckIntegrity_Clean(t *testing.T) {
	report := CheckIntegrity(
		[]*model.Participant{{Name: "Anna"}},
		nil,
		[]*model.Penalty{{ParticipantName: "Anna", Reason: "r", Amount: 1, Date: "2025-01-01"}},
	)
	assert.True(t, report.OK)
	assert.Empty(t, report.Dangling)
	assert.Empty(t, report.Violations)
}
