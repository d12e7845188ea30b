package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleClient = "client"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type User struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email         string    `gorm:"unique;not null"          json:"email"`
	PasswordHash  string    `gorm:"not null"                 json:"-"`
	Role          string    `gorm:"not null;index"           json:"role"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	CompanyName   string    `json:"company_name,omitempty"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Active        bool      `gorm:"default:true"             json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type Tag struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"unique;not null"          json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	Title       string          `gorm:"not null"                    json:"title"`
	Description string          `gorm:"not null"                    json:"description"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock       uint            `gorm:"not null;default:0"          json:"stock"`
	SellerID    uint            `gorm:"index;not null"              json:"seller_id"`
	Seller      *User           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Checked     bool            `gorm:"default:false;index"         json:"checked"`
	Tags        []Tag           `gorm:"many2many:product_tags"      json:"tags,omitempty"`
	Photos      []ProductPhoto  `gorm:"constraint:OnDelete:CASCADE" json:"photos,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductPhoto struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint      `gorm:"index;not null"           json:"product_id"`
	URL       string    `gorm:"not null"                 json:"url"`
	Position  uint      `gorm:"default:0"                json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// CartItem keeps a single row per (user, product) pair, enforced by the
// composite unique index.
type CartItem struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"                   json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Product   *Product  `gorm:"constraint:OnDelete:CASCADE"                json:"product,omitempty"`
	Quantity  uint      `gorm:"default:1;check:quantity>0"                 json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"      json:"id"`
	Token     string    `gorm:"unique;not null" json:"token"`
	UserID    uint      `gorm:"index;not null"  json:"user_id"`
	Role      string    `gorm:"not null"        json:"role"`
	ExpiresAt time.Time `gorm:"not null"        json:"expires_at"`
	Revoked   bool      `gorm:"default:false"   json:"revoked"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Tag{},
		&Product{},
		&ProductPhoto{},
		&CartItem{},
		&RefreshToken{},
	}
}
