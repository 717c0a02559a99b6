package shared

// Core platform permissions, module:action convention.
const (
	PermIncidentsView = "incidents:view"
	PermIncidentsEdit = "incidents:edit"

	PermInventoryView = "inventory:view"
	PermInventoryEdit = "inventory:edit"

	PermSuppliersView = "suppliers:view"
	PermSuppliersEdit = "suppliers:edit"

	PermVacationsView = "vacations:view"
	PermVacationsEdit = "vacations:edit"

	PermComplianceView = "compliance:view"

	PermAnalyticsView = "analytics:view"

	PermUsersView = "users:view"
	PermUsersEdit = "users:edit"
)
