package model

// Known amenity tags. Any other tag is stored and matched verbatim.
const (
	AmenityAirConditioning = "klima"
	AmenityTerrace         = "terasa"
	AmenityPrivateBathroom = "sopstveno kupatilo"
	AmenityPower           = "áram"
	AmenityWindow          = "ablak"
	AmenityUndamagedWall   = "neisvrljan zid"
)

// KnownAmenities lists the tags in display order.
var KnownAmenities = []string{
	AmenityAirConditioning,
	AmenityTerrace,
	AmenityPrivateBathroom,
	AmenityPower,
	AmenityWindow,
	AmenityUndamagedWall,
}
