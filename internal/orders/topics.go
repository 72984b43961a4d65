package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderFulfillment   = "order.fulfillment"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) string { return orderID }
