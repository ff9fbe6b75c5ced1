package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/parse"
)

// UpsertCatalog creates or refreshes dormitories (keyed by name) and rooms
// (keyed by upstream id) from catalogue items. Rooms that are unchanged are
// skipped. It returns the number of rooms written.
func (s *gormStore) UpsertCatalog(ctx context.Context, items []CatalogItem) (int, error) {
	existingRooms, err := s.fetchAllRooms(ctx)
	if err != nil {
		zap.L().Warn("could not pre-fetch rooms", zap.Error(err))
		existingRooms = make(map[int64]model.Room)
	}

	// Phase 1: dormitories
	dormMap, err := s.saveCatalogDorms(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("failed to process dormitories: %w", err)
	}

	// Phase 2: rooms
	var roomsToUpsert []model.Room
	for _, item := range items {
		if item.BedCapacity < 1 {
			zap.L().Warn("skipping room with non-positive capacity", zap.Int64("room_id", item.ID), zap.Int("bed_capacity", item.BedCapacity))
			continue
		}
		dorm, ok := dormMap[strings.TrimSpace(item.Dormitory.Name)]
		if !ok {
			zap.L().Warn("skipping room without dormitory", zap.Int64("room_id", item.ID), zap.String("dormitory", item.Dormitory.Name))
			continue
		}
		room, needsUpsert := prepareRoom(item, existingRooms, dorm.ID)
		if needsUpsert {
			roomsToUpsert = append(roomsToUpsert, room)
		}
	}

	if len(roomsToUpsert) == 0 {
		return 0, nil
	}
	zap.L().Debug("batch upserting rooms", zap.Int("count", len(roomsToUpsert)))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"dormitory_id", "bed_capacity", "amenities", "updated_at"}),
		}).Create(&roomsToUpsert).Error
	})
	if err != nil {
		return 0, fmt.Errorf("batch upsert rooms failed: %w", err)
	}
	return len(roomsToUpsert), nil
}

func (s *gormStore) fetchAllRooms(ctx context.Context) (map[int64]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Find(&rooms).Error; err != nil {
		return nil, err
	}
	roomMap := make(map[int64]model.Room, len(rooms))
	for _, r := range rooms {
		roomMap[r.ID] = r
	}
	return roomMap, nil
}

func (s *gormStore) saveCatalogDorms(ctx context.Context, items []CatalogItem) (map[string]model.Dormitory, error) {
	dormsToUpsert := make(map[string]model.Dormitory)
	for _, item := range items {
		name := strings.TrimSpace(item.Dormitory.Name)
		if name == "" {
			continue
		}
		dormsToUpsert[name] = model.Dormitory{
			Name:    name,
			Address: strings.TrimSpace(item.Dormitory.Address),
			Phone:   strings.TrimSpace(item.Dormitory.Phone),
			Email:   strings.TrimSpace(item.Dormitory.Email),
		}
	}
	if len(dormsToUpsert) == 0 {
		return make(map[string]model.Dormitory), nil
	}

	dormList := make([]model.Dormitory, 0, len(dormsToUpsert))
	for _, d := range dormsToUpsert {
		dormList = append(dormList, d)
	}
	sort.Slice(dormList, func(i, j int) bool { return dormList[i].Name < dormList[j].Name })

	zap.L().Debug("batch upserting dormitories", zap.Int("count", len(dormList)))
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "phone", "email", "updated_at"}),
	}).Create(&dormList).Error; err != nil {
		return nil, fmt.Errorf("batch upsert dormitories failed: %w", err)
	}

	var allDorms []model.Dormitory
	if err := s.db.WithContext(ctx).Find(&allDorms).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve dormitories after upsert: %w", err)
	}
	dormMap := make(map[string]model.Dormitory, len(allDorms))
	for _, d := range allDorms {
		dormMap[d.Name] = d
	}
	return dormMap, nil
}

func prepareRoom(item CatalogItem, existingRooms map[int64]model.Room, dormID int64) (model.Room, bool) {
	newRoom := model.Room{
		ID:          item.ID,
		DormitoryID: dormID,
		BedCapacity: item.BedCapacity,
		Amenities:   parse.NormalizeAmenities(item.Amenities),
	}

	if old, exists := existingRooms[newRoom.ID]; exists {
		if old.DormitoryID == newRoom.DormitoryID &&
			old.BedCapacity == newRoom.BedCapacity &&
			equalTags(old.Amenities, newRoom.Amenities) {
			return newRoom, false
		}
	}
	return newRoom, true
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
