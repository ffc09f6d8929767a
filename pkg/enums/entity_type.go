package enums

// EntityType names the document collections that reconcilers write to.
type EntityType string

const (
	EntityInventoryItem       EntityType = "inventory_item"
	EntityCustomerInvoice     EntityType = "customer_invoice"
	EntityVendorInvoice       EntityType = "vendor_invoice"
	EntityBroker              EntityType = "broker"
	EntityCommissioner        EntityType = "commissioner"
	EntityCommissionSheet     EntityType = "commission_sheet"
	EntityCommissionerPayment EntityType = "commissioner_payment"
)

func (e EntityType) String() string {
	return string(e)
}

var validEntityTypes = []EntityType{
	EntityInventoryItem,
	EntityCustomerInvoice,
	EntityVendorInvoice,
	EntityBroker,
	EntityCommissioner,
	EntityCommissionSheet,
	EntityCommissionerPayment,
}

func (e EntityType) IsValid() bool {
	for _, candidate := range validEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
