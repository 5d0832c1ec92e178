package rbac

// Capability is an action guarded at the HTTP boundary.
type Capability string

const (
	OrdersView   Capability = "orders.view"
	OrdersCreate Capability = "orders.create"
	OrdersDelete Capability = "orders.delete"
	OrdersExport Capability = "orders.export"

	InventoryList   Capability = "inventory.list"
	InventoryManage Capability = "inventory.manage"

	ProductsList   Capability = "products.list"
	ProductsView   Capability = "products.view"
	ProductsManage Capability = "products.manage"

	CustomersView   Capability = "customers.view"
	CustomersManage Capability = "customers.manage"

	UsersView   Capability = "users.view"
	UsersManage Capability = "users.manage"

	NotificationsView Capability = "notifications.view"
	DashboardView     Capability = "dashboard.view"
	AuditView         Capability = "audit.view"
	RedirectsManage   Capability = "redirects.manage"
)

var policy = map[Capability][]Role{
	OrdersView:        {RoleAdmin, RoleOwner, RoleSales, RoleStore},
	OrdersCreate:      {RoleAdmin, RoleOwner, RoleSales, RoleStore},
	OrdersDelete:      {RoleAdmin, RoleOwner},
	OrdersExport:      {RoleAdmin, RoleOwner},
	InventoryList:     {RoleAdmin, RoleOwner, RoleSales, RoleStore},
	InventoryManage:   {RoleAdmin, RoleOwner},
	ProductsList:      {RoleAdmin, RoleOwner, RoleSales, RoleStore},
	ProductsView:      {RoleAdmin, RoleOwner, RoleSales},
	ProductsManage:    {RoleAdmin, RoleOwner},
	CustomersView:     {RoleAdmin, RoleOwner, RoleSales},
	CustomersManage:   {RoleAdmin, RoleOwner},
	UsersView:         {RoleAdmin, RoleOwner},
	UsersManage:       {RoleAdmin},
	NotificationsView: {RoleAdmin, RoleOwner, RoleSales, RoleStore},
	DashboardView:     {RoleAdmin, RoleOwner},
	AuditView:         {RoleAdmin, RoleOwner},
	RedirectsManage:   {RoleAdmin, RoleOwner, RoleSales, RoleStore},
}

// Can reports whether role is granted capability. Unknown capabilities are denied.
func Can(role Role, capability Capability) bool {
	for _, r := range policy[capability] {
		if r == role {
			return true
		}
	}
	return false
}

// Capabilities lists everything role may do.
func Capabilities(role Role) []Capability {
	var out []Capability
	for c, roles := range policy {
		for _, r := range roles {
			if r == role {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
