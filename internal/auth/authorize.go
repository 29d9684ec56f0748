package auth

type Action string

const (
	ActionManageCart        Action = "cart:manage"
	ActionPlaceOrder        Action = "order:place"
	ActionViewOrder         Action = "order:view"
	ActionCancelOrder       Action = "order:cancel"
	ActionSetOrderStatus    Action = "order:set-status"
	ActionSetPaymentStatus  Action = "order:set-payment-status"
	ActionSetFulfillment    Action = "order:set-fulfillment"
	ActionListAllOrders     Action = "order:list-all"
	ActionViewStatistics    Action = "order:statistics"
	ActionViewSellerSales   Action = "seller:sales"
	ActionManageOwnProducts Action = "product:manage"
)

// Resource identifies who owns the thing an action targets. An empty
// OwnerID means the action is not scoped to a particular owner.
type Resource struct {
	OwnerID string
}

// Authorize is the single capability check made before every mutating
// operation. Ownership-scoped actions require caller.ID == resource.OwnerID.
func Authorize(caller Caller, action Action, resource Resource) bool {
	if caller.ID == "" {
		return false
	}

	switch action {
	case ActionManageCart, ActionPlaceOrder:
		return caller.Role == RoleCustomer
	case ActionCancelOrder:
		return caller.Role == RoleCustomer && resource.OwnerID == caller.ID
	case ActionViewOrder:
		return caller.IsAdmin() || resource.OwnerID == caller.ID
	case ActionSetOrderStatus, ActionSetPaymentStatus, ActionListAllOrders, ActionViewStatistics:
		return caller.IsAdmin()
	case ActionSetFulfillment:
		if caller.IsAdmin() {
			return true
		}
		return caller.Role == RoleSeller && resource.OwnerID == caller.ID
	case ActionViewSellerSales:
		return caller.Role == RoleSeller && resource.OwnerID == caller.ID
	case ActionManageOwnProducts:
		if caller.IsAdmin() {
			return true
		}
		return caller.Role == RoleSeller && (resource.OwnerID == "" || resource.OwnerID == caller.ID)
	}
	return false
}
