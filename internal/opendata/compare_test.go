package opendata

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorm-open-data-backend/internal/model"
)

func TestNormalizeIDs(t *testing.T) {
	assert.Equal(t, []string{"2", "1", "x"}, NormalizeIDs([]string{" 2", "1", "", "2 ", "  ", "x"}))
	assert.Empty(t, NormalizeIDs(nil))
}

func TestCompareDormitories_Bounds(t *testing.T) {
	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = strconv.Itoa(i + 1)
	}
	duplicated := append([]string{}, eleven[:10]...)
	duplicated = append(duplicated, "1", " 2 ", "")

	testCases := []struct {
		name        string
		ids         []string
		expectedErr error
	}{
		{name: "No ids", ids: nil, expectedErr: ErrEmptyInput},
		{name: "Only blanks", ids: []string{" ", ""}, expectedErr: ErrEmptyInput},
		{name: "Eleven distinct ids", ids: eleven, expectedErr: ErrTooManyInputs},
		{name: "Ten ids after de-duplication", ids: duplicated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := campus()
			s := newTestService(r)

			_, err := s.CompareDormitories(context.Background(), tc.ids)
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Zero(t, r.calls)
		})
	}
}

func TestCompareDormitories_PartialResults(t *testing.T) {
	r := campus()
	r.apps = []model.Application{
		{ID: 1001, UserID: 1001, RoomID: 10, Grade: 9},
		{ID: 1002, UserID: 1002, RoomID: 11, Grade: 7},
		{ID: 7, UserID: 7, RoomID: 11, Grade: 8, IsActive: true},
		{ID: 8, UserID: 8, RoomID: 20, Grade: 6, IsActive: true},
	}
	s := newTestService(r)

	cmp, err := s.CompareDormitories(context.Background(), []string{"1", "nonexistent", "99"})
	require.NoError(t, err)
	require.Len(t, cmp.Dormitories, 3)
	assert.Equal(t, 1, cmp.Found)
	assert.Equal(t, 2, cmp.Missing)

	a := cmp.Dormitories[0]
	assert.Equal(t, "1", a.RequestedID)
	assert.Nil(t, a.Error)
	require.NotNil(t, a.Statistics)
	assert.Equal(t, 3, a.Statistics.TotalCapacity)
	assert.Equal(t, 2, a.Statistics.OccupiedSpots)
	require.NotNil(t, a.Contact)
	assert.Equal(t, "Zmaja od Bosne 1, Sarajevo", a.Contact.Address)
	assert.Equal(t, map[string]int{"klima": 2, "terasa": 1}, a.AmenitiesOffered)
	assert.Equal(t, map[string]int{"1": 1, "2": 1}, a.RoomDistribution)
	require.NotNil(t, a.Applications)
	assert.Equal(t, 3, a.Applications.TotalApplications, "only applications for Dom A rooms count")
	assert.Equal(t, 1, a.Applications.ActiveApplications)
	assert.Equal(t, 2, a.Applications.AcceptedApplications)
	assert.Equal(t, 66.67, a.Applications.AcceptanceRate)

	for _, missing := range cmp.Dormitories[1:] {
		require.NotNil(t, missing.Error)
		assert.Equal(t, KindNotFound, missing.Error.Kind)
		assert.Nil(t, missing.Statistics)
	}
	assert.Equal(t, "nonexistent", cmp.Dormitories[1].RequestedID)
}

func TestCompareDormitories_KeepsRequestOrder(t *testing.T) {
	s := newTestService(campus())

	cmp, err := s.CompareDormitories(context.Background(), []string{"2", "1"})
	require.NoError(t, err)
	require.Len(t, cmp.Dormitories, 2)
	assert.Equal(t, "Dom B", cmp.Dormitories[0].Statistics.Name)
	assert.Equal(t, "Dom A", cmp.Dormitories[1].Statistics.Name)
}
