package domain

import "time"

// ProductType classifies a product within the funnel.
type ProductType string

const (
	ProductTripwire     ProductType = "tripwire"
	ProductCourse       ProductType = "course"
	ProductConsultation ProductType = "consultation"
	ProductMain         ProductType = "main_product"
	ProductUpsell       ProductType = "upsell"
	ProductDownsell     ProductType = "downsell"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTripwire, ProductCourse, ProductConsultation, ProductMain, ProductUpsell, ProductDownsell:
		return true
	}
	return false
}

// Currency is an ISO currency code accepted for product prices.
type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	return c == CurrencyRUB || c == CurrencyUSD || c == CurrencyEUR
}

// Product is sellable reference data. The core only reads it.
//
// Price is stored in minor units of Currency.
type Product struct {
	ID          string      `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string      `json:"name"        gorm:"type:varchar(255);not null"`
	Description string      `json:"description" gorm:"type:text"`
	Type        ProductType `json:"type"        gorm:"type:varchar(32);not null;index;check:type IN ('tripwire','course','consultation','main_product','upsell','downsell')"`
	Price       int         `json:"price"       gorm:"not null"`
	Currency    Currency    `json:"currency"    gorm:"type:varchar(3);not null;default:'RUB'"`
	PaymentURL  string      `json:"payment_url" gorm:"type:varchar(500)"`
	OfferText   string      `json:"offer_text"  gorm:"type:text"`
	IsActive    bool        `json:"is_active"   gorm:"not null"`
	SortOrder   int         `json:"sort_order"  gorm:"not null;default:0"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// ProductOffer is a presentable offer for a product. Price, when set,
// overrides the product price.
type ProductOffer struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string    `json:"product_id" gorm:"type:char(36);not null;index"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	Price     *int      `json:"price,omitempty"`
	IsActive  bool      `json:"is_active"  gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ProductOffer.
func (ProductOffer) TableName() string { return "product_offers" }

// EffectivePrice returns the offer price override or the product price.
func (o ProductOffer) EffectivePrice() int {
	if o.Price != nil {
		return *o.Price
	}
	return o.Product.Price
}

// UserProductOffer records one showing of an offer to a user. A user may be
// shown the same offer several times; each showing is its own row.
type UserProductOffer struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:char(36);not null;index:idx_upo_user_offer,priority:1"`
	OfferID   string     `json:"offer_id"   gorm:"type:char(36);not null;index:idx_upo_user_offer,priority:2"`
	ShownAt   time.Time  `json:"shown_at"   gorm:"not null;index"`
	Clicked   bool       `json:"clicked"    gorm:"not null;default:false"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User  User         `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Offer ProductOffer `json:"-" gorm:"foreignKey:OfferID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserProductOffer.
func (UserProductOffer) TableName() string { return "user_product_offers" }
