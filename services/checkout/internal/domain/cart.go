package domain

import "github.com/shopspring/decimal"

type CartItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int32           `json:"quantity"`
	Stock     int32           `json:"stock"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

func (i CartItem) InStock() bool {
	return i.Quantity <= i.Stock
}

type Cart struct {
	UserID int64
	Items  []CartItem
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ChargeAmount is the cart total rounded to whole pesos.
func (c *Cart) ChargeAmount() int64 {
	return c.Total().Round(0).IntPart()
}
