package model

// Venue 场地表，对应 venues
type Venue struct {
	VenueID    string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"venue_id"`
	Name       string `gorm:"type:varchar(200);not null"                     json:"name"`
	Location   string `gorm:"type:varchar(255);not null"                     json:"location"`
	Capacity   int    `gorm:"not null"                                       json:"capacity"`
	Facilities string `gorm:"type:text"                                      json:"facilities,omitempty"`
	IsActive   bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Venue) TableName() string { return "venues" }
