package web

/* view types for the api */

import (
	"github.com/rorycl/orderingest/db"
)

// viewCategory is a category listing entry.
type viewCategory struct {
	Category string `json:"category"`
}

// newViewCategories maps category names to viewCategory entries.
func newViewCategories(categories []string) []viewCategory {
	vc := make([]viewCategory, len(categories))
	for i, c := range categories {
		vc[i].Category = c
	}
	return vc
}

// viewOrder is a view version of the db.OrderExport type, with non-pointer fields.
type viewOrder struct {
	OrderID         string `json:"order_id"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Category        string `json:"category"`
	QuantitySold    int64  `json:"quantity_sold"`
	SellingPrice    string `json:"selling_price"`
	DateOfSale      string `json:"date_of_sale"`
	CustomerID      string `json:"customer_id"`
	PlatformName    string `json:"platform_name"`
	CouponUsed      bool   `json:"coupon_used"`
	ReturnWindow    int64  `json:"return_window"`
	DeliveryAddress string `json:"delivery_address"`
	DeliveryDate    string `json:"delivery_date,omitempty"`
	DeliveryStatus  string `json:"delivery_status"`
}

// newViewOrders maps db.OrderExport records to a slice of viewOrder.
func newViewOrders(orders []db.OrderExport) []viewOrder {
	vo := make([]viewOrder, len(orders))
	for i, o := range orders {
		vo[i] = viewOrder{
			OrderID:         o.OrderID,
			ProductID:       o.ProductID,
			ProductName:     o.ProductName,
			Category:        o.Category,
			QuantitySold:    o.QuantitySold,
			SellingPrice:    o.SellingPrice.StringFixed(2),
			DateOfSale:      o.DateOfSale,
			CustomerID:      o.CustomerID,
			PlatformName:    o.PlatformName,
			CouponUsed:      o.CouponUsed,
			DeliveryAddress: o.DeliveryAddress,
			DeliveryStatus:  o.DeliveryStatus,
		}
		// de-pointer
		if o.ReturnWindow != nil {
			vo[i].ReturnWindow = *o.ReturnWindow
		}
		if o.DeliveryDate != nil {
			vo[i].DeliveryDate = *o.DeliveryDate
		}
	}
	return vo
}

// xlsxRow returns an order as typed spreadsheet cells in db.ExportHeader order.
func xlsxRow(o db.OrderExport) []any {
	var returnWindow, deliveryDate any
	if o.ReturnWindow != nil {
		returnWindow = *o.ReturnWindow
	}
	if o.DeliveryDate != nil {
		deliveryDate = *o.DeliveryDate
	}
	return []any{
		o.OrderID, o.ProductID, o.ProductName, o.Category, o.QuantitySold,
		o.SellingPrice.InexactFloat64(), o.DateOfSale, o.CustomerID, o.PlatformName,
		o.CouponUsed, returnWindow, o.DeliveryAddress, deliveryDate, o.DeliveryStatus,
	}
}
