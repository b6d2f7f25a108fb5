package auth

import (
	"strings"

	"insaat-backend/internal/models"
)

type Capability string

const (
	CapFinanceRead       Capability = "finance:read"
	CapTransactionsWrite Capability = "transactions:write"
	CapBudgetWrite       Capability = "budget:write"
	CapSavingsWrite      Capability = "savings:write"
	CapAlertsResolve     Capability = "alerts:resolve"
	CapRepairRun         Capability = "repair:run"
	CapAuditRead         Capability = "audit:read"
)

var roleCapabilities = map[models.UserRole][]Capability{
	models.RoleProjectManager: {
		CapFinanceRead, CapTransactionsWrite, CapBudgetWrite, CapSavingsWrite, CapAlertsResolve,
	},
	models.RoleAccountant: {
		CapFinanceRead, CapTransactionsWrite, CapSavingsWrite, CapAuditRead,
	},
	models.RoleViewer: {
		CapFinanceRead,
	},
}

// NormalizeRole rol adını küçük harfe çevirir; "Project-Manager" gibi yazımlar da eşleşir.
func NormalizeRole(role string) models.UserRole {
	r := strings.ToLower(strings.TrimSpace(role))
	r = strings.NewReplacer("-", "_", " ", "_").Replace(r)
	return models.UserRole(r)
}

// Can admin her şeyi yapabilir, diğer roller tablodaki yetkilerle sınırlı.
func Can(role models.UserRole, capability Capability) bool {
	role = NormalizeRole(string(role))
	if role == models.RoleAdmin {
		return true
	}
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}
