package repository_test

import (
	"context"
	"testing"

	"AytoSync/internal/model"
	"AytoSync/internal/repository"
	"AytoSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func participant(id uint64, name, gender string) *model.Participant {
	return &model.Participant{ID: id, Name: name, Gender: gender, Status: model.StatusActive, Active: true}
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func TestImportBatch_InsertsAllEntities(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewImportRepository(db)

	price := 5000.0
	stats, err := repo.ImportBatch(context.Background(), &model.ImportBatch{
		Participants: []*model.Participant{
			participant(1, "Anna", model.GenderFemale),
			participant(2, "Ben", model.GenderMale),
		},
		MatchingNights: []*model.MatchingNight{
			{ID: 1, Name: "MN 1", Date: "2025-01-01", Pairs: datatypes.JSON(`[{"woman":"Anna","man":"Ben"}]`), TotalLights: 2},
		},
		Matchboxes: []*model.Matchbox{
			{Woman: "Anna", Man: "Ben", MatchType: "no-match", Price: &price, Buyer: "Anna"},
		},
		Penalties: []*model.Penalty{
			{ParticipantName: "Ben", Reason: "Regelbruch", Amount: 200, Date: "2025-01-02"},
		},
		BroadcastNotes: []*model.BroadcastNote{
			{Date: "2025-01-01", Notes: "erste"},
		},
		ProbabilityCache: []*model.ProbabilityCache{
			{DataHash: "h1", Payload: datatypes.JSON(`{"p":0.5}`)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ImportStats{
		Participants: 2, MatchingNights: 1, Matchboxes: 1, Penalties: 1, BroadcastNotes: 1, ProbabilityCache: 1,
	}, stats)

	var stored model.Participant
	require.NoError(t, db.First(&stored, 2).Error)
	assert.Equal(t, "Ben", stored.Name)
}

func TestImportBatch_ClearReplacesExistingRows(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewImportRepository(db)
	ctx := context.Background()

	_, err := repo.ImportBatch(ctx, &model.ImportBatch{
		Participants: []*model.Participant{
			participant(0, "B", model.GenderMale),
			participant(0, "C", model.GenderFemale),
		},
		Penalties: []*model.Penalty{{ParticipantName: "B", Reason: "x", Amount: 1, Date: "2025-01-01"}},
	})
	require.NoError(t, err)

	stats, err := repo.ImportBatch(ctx, &model.ImportBatch{
		ClearBeforeImport: true,
		Participants:      []*model.Participant{participant(0, "A", model.GenderFemale)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Participants)

	var names []string
	require.NoError(t, db.Model(&model.Participant{}).Pluck("name", &names).Error)
	assert.Equal(t, []string{"A"}, names)
	assert.Zero(t, countRows(t, db, &model.Penalty{}))
}

func TestImportBatch_FailureRollsBackEverything(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewImportRepository(db)
	ctx := context.Background()

	_, err := repo.ImportBatch(ctx, &model.ImportBatch{
		Participants: []*model.Participant{
			participant(1, "B", model.GenderMale),
			participant(2, "C", model.GenderFemale),
		},
		BroadcastNotes: []*model.BroadcastNote{{Date: "2025-01-01", Notes: "bleibt"}},
	})
	require.NoError(t, err)

	// 批内主键重复：清空和前面的写入都必须回滚
	stats, err := repo.ImportBatch(ctx, &model.ImportBatch{
		ClearBeforeImport: true,
		Participants: []*model.Participant{
			participant(7, "X", model.GenderMale),
			participant(7, "Y", model.GenderFemale),
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participants[1]")
	assert.Equal(t, model.ImportStats{}, stats)

	assert.EqualValues(t, 2, countRows(t, db, &model.Participant{}))
	assert.EqualValues(t, 1, countRows(t, db, &model.BroadcastNote{}))
	var missing int64
	require.NoError(t, db.Model(&model.Participant{}).Where("id = ?", 7).Count(&missing).Error)
	assert.Zero(t, missing)
}

func TestImportBatch_WithoutClearAccumulates(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewImportRepository(db)
	ctx := context.Background()
	batch := func() *model.ImportBatch {
		return &model.ImportBatch{Participants: []*model.Participant{participant(0, "A", model.GenderFemale)}}
	}

	_, err := repo.ImportBatch(ctx, batch())
	require.NoError(t, err)
	_, err = repo.ImportBatch(ctx, batch())
	require.NoError(t, err)

	assert.EqualValues(t, 2, countRows(t, db, &model.Participant{}))
}

func TestImportBatch_BroadcastNotesUpsertByDate(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewImportRepository(db)
	ctx := context.Background()

	_, err := repo.ImportBatch(ctx, &model.ImportBatch{
		BroadcastNotes: []*model.BroadcastNote{{Date: "2025-01-01", Notes: "alt"}},
	})
	require.NoError(t, err)
	stats, err := repo.ImportBatch(ctx, &model.ImportBatch{
		BroadcastNotes: []*model.BroadcastNote{{Date: "2025-01-01", Notes: "neu"}},
		ProbabilityCache: []*model.ProbabilityCache{
			{DataHash: "h1", Payload: datatypes.JSON(`{"v":1}`)},
			{DataHash: "h1", Payload: datatypes.JSON(`{"v":2}`)},
		},
	})
	require.NoError(t, err)
	// 更新已有日期的备注不计数；同批两条相同 hash 只算一次插入
	assert.Equal(t, 0, stats.BroadcastNotes)
	assert.Equal(t, 1, stats.ProbabilityCache)

	var notes []model.BroadcastNote
	require.NoError(t, db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, "neu", notes[0].Notes)

	var caches []model.ProbabilityCache
	require.NoError(t, db.Find(&caches).Error)
	require.Len(t, caches, 1)
	assert.JSONEq(t, `{"v":2}`, string(caches[0].Payload))
}

func TestImportBatch_DuplicateNoteDatesCountOnce(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	stats, err := repository.NewImportRepository(db).ImportBatch(context.Background(), &model.ImportBatch{
		BroadcastNotes: []*model.BroadcastNote{
			{Date: "2025-01-01", Notes: "eins"},
			{Date: "2025-01-01", Notes: "zwei"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BroadcastNotes)
	assert.EqualValues(t, 1, countRows(t, db, &model.BroadcastNote{}))
}
