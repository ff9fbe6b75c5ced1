package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dorm-open-data-backend/internal/opendata"
	"dorm-open-data-backend/internal/parse"
)

// GetStatistics handles GET /api/v1/open-data/statistics.
func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.openData.Statistics(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// GetDormitoryStatistics handles GET /api/v1/open-data/statistics/dorms/:dorm_id.
func (h *Handler) GetDormitoryStatistics(c *gin.Context) {
	dormID, err := pathID(c, "dorm_id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	stats, err := h.openData.DormitoryStatistics(c.Request.Context(), dormID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// SearchRooms handles GET /api/v1/open-data/rooms/search.
// Query params: amenities, dorm_id, address, capacity, min_capacity,
// max_capacity, only_available, limit, offset.
func (h *Handler) SearchRooms(c *gin.Context) {
	q, err := roomQueryFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, err := h.openData.SearchRooms(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms":  res.Rooms,
		"count":  len(res.Rooms),
		"total":  res.Total,
		"limit":  res.Limit,
		"offset": res.Offset,
	})
}

func roomQueryFrom(c *gin.Context) (opendata.RoomQuery, error) {
	q := opendata.RoomQuery{
		Amenities:        parse.SplitList(c.Query("amenities")),
		AddressSubstring: c.Query("address"),
	}

	if raw := c.Query("dorm_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, invalidValue("dorm_id must be an integer")
		}
		q.DormitoryID = &id
	}

	ints := []struct {
		name string
		dst  **int
	}{
		{"capacity", &q.ExactCapacity},
		{"min_capacity", &q.MinCapacity},
		{"max_capacity", &q.MaxCapacity},
	}
	for _, p := range ints {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, invalidValue(p.name + " must be an integer")
		}
		*p.dst = &v
	}

	if raw := c.Query("only_available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return q, invalidValue("only_available must be a boolean")
		}
		q.OnlyAvailable = v
	}

	var err error
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidValue(name + " must be an integer")
	}
	return v, nil
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, invalidValue(name + " must be an integer")
	}
	return id, nil
}

// GetRoomApplications handles GET /api/v1/open-data/rooms/:room_id/applications.
func (h *Handler) GetRoomApplications(c *gin.Context) {
	roomID, err := pathID(c, "room_id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, err := h.openData.RoomApplications(c.Request.Context(), roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// GetAcceptedByYear handles GET /api/v1/open-data/applications/academic-year.
func (h *Handler) GetAcceptedByYear(c *gin.Context) {
	year := c.Query("academic_year")
	if year == "" {
		h.respondError(c, invalidValue("academic_year query parameter is required"))
		return
	}
	accepted, err := h.openData.AcceptedByYear(c.Request.Context(), year)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accepted, "count": len(accepted)})
}

// GetDormitories handles GET /api/v1/open-data/dorms/list.
func (h *Handler) GetDormitories(c *gin.Context) {
	dorms, err := h.openData.Dormitories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dorms": dorms, "count": len(dorms)})
}

// CompareDormitories handles GET /api/v1/open-data/dorms/compare?dorm_ids=1,2.
func (h *Handler) CompareDormitories(c *gin.Context) {
	ids := parse.SplitList(c.Query("dorm_ids"))
	comparison, err := h.openData.CompareDormitories(c.Request.Context(), ids)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": comparison})
}

// GetApplicationTrends handles GET /api/v1/open-data/trends/applications.
// Optional from and to bound the year range.
func (h *Handler) GetApplicationTrends(c *gin.Context) {
	trends, err := h.openData.ApplicationTrends(c.Request.Context(), opendata.TrendQuery{
		From: c.Query("from"),
		To:   c.Query("to"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

// GetOccupancyHeatmap handles GET /api/v1/open-data/occupancy/heatmap.
func (h *Handler) GetOccupancyHeatmap(c *gin.Context) {
	heatmap, err := h.openData.OccupancyHeatmap(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"heatmap": heatmap})
}

// GetAmenities handles GET /api/v1/open-data/amenities.
func (h *Handler) GetAmenities(c *gin.Context) {
	amenities, err := h.openData.Amenities(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amenities": amenities, "count": len(amenities)})
}

// Export handles GET /api/v1/open-data/export?dataset=&format=.
func (h *Handler) Export(c *gin.Context) {
	dataset := c.Query("dataset")
	if dataset == "" {
		h.respondError(c, &opendata.Error{
			Kind:    opendata.KindUnknownDataset,
			Message: "dataset parameter is required",
		})
		return
	}
	res, err := h.openData.Export(c.Request.Context(), dataset, c.Query("format"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+res.Filename)
	c.Data(http.StatusOK, res.ContentType, res.Body)
}
