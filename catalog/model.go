package catalog

import (
	"fmt"
	"math/big"

	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
)

// Record is the relational shape of a cached property.
type Record struct {
	ID           uint64 `gorm:"column:property_id;primaryKey"`
	Owner        string `gorm:"column:owner;type:varchar(66);index;not null"`
	Name         string `gorm:"column:name;type:varchar(255);not null"`
	Location     string `gorm:"column:location;type:varchar(255)"`
	PropertyType string `gorm:"column:property_type;type:varchar(50)"`
	Price        string `gorm:"column:price;type:varchar(80);not null"`
	ImageHash    string `gorm:"column:image_hash;type:varchar(100);not null"`
	Bedrooms     uint   `gorm:"column:bedrooms;not null"`
	Kitchens     uint   `gorm:"column:kitchens;not null"`
	IsSold       bool   `gorm:"column:is_sold;default:false"`
}

func (Record) TableName() string { return "properties" }

func recordFrom(p ledger.Property) Record {
	return Record{
		ID:           p.ID,
		Owner:        p.Owner,
		Name:         p.Name,
		Location:     p.Location,
		PropertyType: p.PropertyType,
		Price:        p.Price.String(),
		ImageHash:    p.ImageHash,
		Bedrooms:     p.Bedrooms,
		Kitchens:     p.Kitchens,
		IsSold:       p.IsSold,
	}
}

func (r Record) property() (ledger.Property, error) {
	price, ok := new(big.Int).SetString(r.Price, 10)
	if !ok {
		return ledger.Property{}, fmt.Errorf("corrupt price %q for property %d", r.Price, r.ID)
	}
	return ledger.Property{
		ID:           r.ID,
		Owner:        r.Owner,
		Name:         r.Name,
		Location:     r.Location,
		PropertyType: r.PropertyType,
		Price:        price,
		ImageHash:    r.ImageHash,
		Bedrooms:     r.Bedrooms,
		Kitchens:     r.Kitchens,
		IsSold:       r.IsSold,
	}, nil
}
