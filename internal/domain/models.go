// Package domain defines the persistence models for the EcoPrenda
// marketplace: users, clothing listings, transactions, foundations,
// campaigns, messages, impact records, and achievements. These types are
// mapped with GORM and shared by the repository and service layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a marketplace participant. Representatives carry the foundation
// they act for; the map fields are populated by geocoding.
//
// Fields:
//   - Role: CLIENT, ADMIN, MODERATOR, or FOUNDATION_REP.
//   - FoundationID: foundation represented by a FOUNDATION_REP (indexed).
//   - Latitude / Longitude: nil until an address is geocoded.
//   - ShowOnMap: opt-in for the public map.
type User struct {
	ID           uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"name"          gorm:"type:varchar(120);not null"`
	Email        string    `json:"email"         gorm:"type:varchar(255);not null;uniqueIndex"`
	Role         Role      `json:"role"          gorm:"type:varchar(20);not null;default:'CLIENT'"`
	FoundationID *uint     `json:"foundation_id,omitempty" gorm:"index"`
	Address      string    `json:"address,omitempty" gorm:"type:varchar(255)"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	ShowOnMap    bool      `json:"show_on_map"   gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Foundation *Foundation `json:"-" gorm:"foreignKey:FoundationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Listing is a clothing item offered by its owner.
//
// Fields:
//   - OwnerID: owning user (indexed).
//   - Category / Size / Condition: closed enumerations (see enums.go).
//   - Status: AVAILABLE, RESERVED, TRANSFERRED, or REMOVED. Never changed by
//     an edit; only the transaction engine and moderation move it.
//   - WeightKg: optional weight used to scale the impact figures.
//   - Price: asking price for sales; null when the item is not for sale.
//   - ImageURL / ImageID: hosted image and its storage identifier.
//   - SuggestedCategory / SuggestedConfidence: classifier hint, never enforced.
type Listing struct {
	ID                  uint                `json:"id"          gorm:"primaryKey;autoIncrement"`
	OwnerID             uint                `json:"owner_id"    gorm:"not null;index:idx_listing_owner"`
	Name                string              `json:"name"        gorm:"type:varchar(100);not null"`
	Description         string              `json:"description" gorm:"type:text;not null"`
	Category            Category            `json:"category"    gorm:"type:varchar(20);not null;index:idx_listing_filter,priority:2"`
	Size                Size                `json:"size"        gorm:"type:varchar(5);not null;index:idx_listing_filter,priority:3"`
	Condition           Condition           `json:"condition"   gorm:"type:varchar(20);not null"`
	Status              ListingStatus       `json:"status"      gorm:"type:varchar(20);not null;default:'AVAILABLE';index:idx_listing_filter,priority:1"`
	WeightKg            *float64            `json:"weight_kg,omitempty"`
	Price               decimal.NullDecimal `json:"price"       gorm:"type:decimal(12,2)" swaggertype:"string"`
	ImageURL            string              `json:"image_url,omitempty" gorm:"type:varchar(512)"`
	ImageID             string              `json:"image_id,omitempty"  gorm:"type:varchar(255)"`
	SuggestedCategory   string              `json:"suggested_category,omitempty" gorm:"type:varchar(20)"`
	SuggestedConfidence *float64            `json:"suggested_confidence,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	Owner  *User         `json:"-"                gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Impact *ImpactRecord `json:"impact,omitempty" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// ImpactRecord caches the environmental figures of one listing. It is
// written once when the listing is created and removed with it.
type ImpactRecord struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	ListingID uint      `json:"listing_id" gorm:"not null;uniqueIndex"`
	CarbonKg  float64   `json:"carbon_kg"  gorm:"not null"`
	EnergyKWh float64   `json:"energy_kwh" gorm:"column:energy_kwh;not null"`
	WaterL    float64   `json:"water_l"    gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ImpactRecord.
func (ImpactRecord) TableName() string { return "impact_records" }

// TransactionType is the seeded catalog of transaction kinds.
type TransactionType struct {
	Code        TxType `json:"code"        gorm:"type:varchar(16);primaryKey"`
	Description string `json:"description" gorm:"type:varchar(120);not null"`
}

// TableName returns the database table name for TransactionType.
func (TransactionType) TableName() string { return "transaction_types" }

// Transaction records one proposed or executed exchange, sale, or donation
// of a single listing.
//
// Fields:
//   - ListingID: the listing being transferred (indexed; cascade on delete).
//   - TypeCode: EXCHANGE, SALE, or DONATION.
//   - OriginUserID: proposer for exchanges, seller for sales, donor for donations.
//   - DestinationUserID: receiving user; nil for donations.
//   - FoundationID / CampaignID: donation target and optional campaign.
//   - OfferedListingID: proposer's own listing offered in an exchange.
//   - Amount: agreed price for sales.
//   - Status: see TxStatus; every write is a compare-and-set on this column.
//   - AcceptedAt / ShippedAt / DeliveredAt: lifecycle timestamps.
//   - Courier / TrackingCode: shipment details given when marked shipped.
//   - Dispute*: reporter, reason and time of a raised dispute.
//   - Resolution*: administrator decision on a dispute.
type Transaction struct {
	ID                uint                `json:"id"                  gorm:"primaryKey;autoIncrement"`
	ListingID         uint                `json:"listing_id"          gorm:"not null;index:idx_tx_listing_status,priority:1"`
	TypeCode          TxType              `json:"type"                gorm:"type:varchar(16);not null;index"`
	OriginUserID      uint                `json:"origin_user_id"      gorm:"not null;index"`
	DestinationUserID *uint               `json:"destination_user_id,omitempty" gorm:"index"`
	FoundationID      *uint               `json:"foundation_id,omitempty"       gorm:"index"`
	CampaignID        *uint               `json:"campaign_id,omitempty"         gorm:"index"`
	OfferedListingID  *uint               `json:"offered_listing_id,omitempty"  gorm:"index"`
	Amount            decimal.NullDecimal `json:"amount"              gorm:"type:decimal(12,2)" swaggertype:"string"`
	Status            TxStatus            `json:"status"              gorm:"type:varchar(16);not null;default:'PENDIENTE';index:idx_tx_listing_status,priority:2"`
	AcceptedAt        *time.Time          `json:"accepted_at,omitempty"`
	ShippedAt         *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	Courier           string              `json:"courier,omitempty"       gorm:"type:varchar(60)"`
	TrackingCode      string              `json:"tracking_code,omitempty" gorm:"type:varchar(100)"`
	DisputeReporterID *uint               `json:"dispute_reporter_id,omitempty"`
	DisputeReason     string              `json:"dispute_reason,omitempty" gorm:"type:text"`
	DisputedAt        *time.Time          `json:"disputed_at,omitempty"`
	ResolutionNotes   string              `json:"resolution_notes,omitempty" gorm:"type:text"`
	ResolvedByID      *uint               `json:"resolved_by_id,omitempty"`
	ResolvedAt        *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	Listing         *Listing         `json:"listing,omitempty" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Type            *TransactionType `json:"-"                 gorm:"foreignKey:TypeCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	OriginUser      *User            `json:"-"                 gorm:"foreignKey:OriginUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	DestinationUser *User            `json:"-"                 gorm:"foreignKey:DestinationUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Foundation      *Foundation      `json:"-"                 gorm:"foreignKey:FoundationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Campaign        *Campaign        `json:"-"                 gorm:"foreignKey:CampaignID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	OfferedListing  *Listing         `json:"-"                 gorm:"foreignKey:OfferedListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// Foundation is an organization that receives donated listings.
type Foundation struct {
	ID          uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name"        gorm:"type:varchar(120);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	Address     string    `json:"address,omitempty" gorm:"type:varchar(255)"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Active      bool      `json:"active"      gorm:"not null;default:true;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Foundation.
func (Foundation) TableName() string { return "foundations" }

// Campaign is a time-boxed donation drive run by a foundation.
//
// Fields:
//   - Goal: number of completed donations targeted (> 0).
//   - RequestedCategories: comma-separated categories the drive asks for.
//   - StartDate / EndDate: inclusive window during which donations are accepted.
type Campaign struct {
	ID                  uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	FoundationID        uint      `json:"foundation_id" gorm:"not null;index"`
	Name                string    `json:"name"          gorm:"type:varchar(120);not null"`
	Description         string    `json:"description"   gorm:"type:text"`
	StartDate           time.Time `json:"start_date"    gorm:"not null;index:idx_campaign_window,priority:1"`
	EndDate             time.Time `json:"end_date"      gorm:"not null;index:idx_campaign_window,priority:2"`
	Goal                int       `json:"goal"          gorm:"not null"`
	RequestedCategories string    `json:"requested_categories,omitempty" gorm:"type:varchar(255)"`
	Active              bool      `json:"active"        gorm:"not null;default:true"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	Foundation *Foundation `json:"-" gorm:"foreignKey:FoundationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string { return "campaigns" }

// OpenAt reports whether the campaign accepts donations at t.
func (c Campaign) OpenAt(t time.Time) bool {
	if !c.Active {
		return false
	}
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// Message is a user-to-user note, optionally tied to a transaction.
type Message struct {
	ID            uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	SenderID      uint      `json:"sender_id"   gorm:"not null;index:idx_msg_pair,priority:1"`
	ReceiverID    uint      `json:"receiver_id" gorm:"not null;index:idx_msg_pair,priority:2;index:idx_msg_inbox"`
	TransactionID *uint     `json:"transaction_id,omitempty" gorm:"index"`
	Content       string    `json:"content"     gorm:"type:text;not null"`
	Read          bool      `json:"read"        gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at"  gorm:"index:idx_msg_pair,priority:3"`

	Sender      *User        `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Receiver    *User        `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Transaction *Transaction `json:"-" gorm:"foreignKey:TransactionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Achievement is a static badge definition keyed by a machine-checkable code.
type Achievement struct {
	Code        AchievementCode `json:"code"        gorm:"type:varchar(32);primaryKey"`
	Name        string          `json:"name"        gorm:"type:varchar(80);not null"`
	Description string          `json:"description" gorm:"type:varchar(255)"`
	Icon        string          `json:"icon"        gorm:"type:varchar(40)"`
	Threshold   float64         `json:"threshold"`
}

// TableName returns the database table name for Achievement.
func (Achievement) TableName() string { return "achievements" }

// UserAchievement records that a user unlocked an achievement. The pair
// (user, code) is unique so a grant can only happen once.
type UserAchievement struct {
	ID              uint            `json:"id"               gorm:"primaryKey;autoIncrement"`
	UserID          uint            `json:"user_id"          gorm:"not null;uniqueIndex:ux_user_achievement,priority:1"`
	AchievementCode AchievementCode `json:"achievement_code" gorm:"type:varchar(32);not null;uniqueIndex:ux_user_achievement,priority:2"`
	UnlockedAt      time.Time       `json:"unlocked_at"      gorm:"not null"`

	User        *User        `json:"-"                     gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Achievement *Achievement `json:"achievement,omitempty" gorm:"foreignKey:AchievementCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserAchievement.
func (UserAchievement) TableName() string { return "user_achievements" }
