// Package batch tracks customer-owned lots. A batch is created the first time
// a receipt references an unknown code and is never deleted.
package batch

import (
	"errors"
	"time"
)

// Batch identifies a homogeneous lot of goods belonging to one customer.
// Customer is empty until the first receipt claims the batch.
type Batch struct {
	Code      string    `json:"code"`
	Customer  string    `json:"customer,omitempty"`
	GoodsItem string    `json:"goods_item"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrOwnedByOtherCustomer rejects re-assignment of a claimed batch. The policy
// here is to block: receipts for a batch already owned by another customer
// fail validation instead of silently sharing or stealing the lot.
var ErrOwnedByOtherCustomer = errors.New("batch: already owned by another customer")
