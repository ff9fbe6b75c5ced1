package opendata

import (
	"context"
	"sort"
)

const (
	HeatHigh   = "high"
	HeatMedium = "medium"
	HeatLow    = "low"
)

// HeatmapPoint is the occupancy of one dormitory, bucketed for display.
type HeatmapPoint struct {
	DormitoryID    int64   `json:"dormitory_id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	OccupancyRate  float64 `json:"occupancy_rate"`
	OccupiedSpots  int     `json:"occupied_spots"`
	TotalCapacity  int     `json:"total_capacity"`
	AvailableSpots int     `json:"available_spots"`
	Status         string  `json:"status"`
}

type HeatmapSummary struct {
	AverageOccupancy float64 `json:"average_occupancy"`
	HighestOccupancy float64 `json:"highest_occupancy"`
	LowestOccupancy  float64 `json:"lowest_occupancy"`
	FullDormitories  int     `json:"full_dormitories"`
	EmptyDormitories int     `json:"empty_dormitories"`
}

type Heatmap struct {
	Points  []HeatmapPoint `json:"dormitories"`
	Summary HeatmapSummary `json:"summary"`
}

// OccupancyHeatmap buckets every dormitory by occupancy rate.
func (s *Service) OccupancyHeatmap(ctx context.Context) (*Heatmap, error) {
	snap, err := s.LoadSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return ComputeHeatmap(ComputeStatistics(snap, 0).Dormitories), nil
}

// ComputeHeatmap turns per-dormitory statistics into heatmap points.
func ComputeHeatmap(dorms []DormStats) *Heatmap {
	hm := &Heatmap{Points: make([]HeatmapPoint, 0, len(dorms))}
	if len(dorms) == 0 {
		return hm
	}
	hm.Summary.LowestOccupancy = dorms[0].OccupancyRate
	var sum float64
	for _, d := range dorms {
		hm.Points = append(hm.Points, HeatmapPoint{
			DormitoryID:    d.DormitoryID,
			Name:           d.Name,
			Address:        d.Address,
			OccupancyRate:  d.OccupancyRate,
			OccupiedSpots:  d.OccupiedSpots,
			TotalCapacity:  d.TotalCapacity,
			AvailableSpots: d.AvailableSpots,
			Status:         heatStatus(d.OccupancyRate),
		})
		sum += d.OccupancyRate
		if d.OccupancyRate > hm.Summary.HighestOccupancy {
			hm.Summary.HighestOccupancy = d.OccupancyRate
		}
		if d.OccupancyRate < hm.Summary.LowestOccupancy {
			hm.Summary.LowestOccupancy = d.OccupancyRate
		}
		if d.TotalCapacity > 0 && d.OccupiedSpots >= d.TotalCapacity {
			hm.Summary.FullDormitories++
		}
		if d.OccupiedSpots == 0 {
			hm.Summary.EmptyDormitories++
		}
	}
	hm.Summary.AverageOccupancy = mean(sum, len(dorms))
	sort.Slice(hm.Points, func(i, j int) bool { return hm.Points[i].DormitoryID < hm.Points[j].DormitoryID })
	return hm
}

func heatStatus(rate float64) string {
	switch {
	case rate >= 80:
		return HeatHigh
	case rate >= 50:
		return HeatMedium
	default:
		return HeatLow
	}
}
