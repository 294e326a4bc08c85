package authz

// ModulePolicyPrefix is the fixed prefix of dynamically resolved module policies
const ModulePolicyPrefix = "Module_"

// Known module identifiers. The resolver treats identifiers as opaque strings;
// this list exists for route declarations and token issuance.
const (
	ModuleCompany    = "EMPRESAS"
	ModuleBranch     = "FILIAIS"
	ModuleCostCenter = "CENTROS_CUSTO"
	ModuleCategory   = "CATEGORIAS"
	ModuleProduct    = "PRODUTOS"
	ModuleMenu       = "CARDAPIOS"
	ModuleInventory  = "ESTOQUE"
	ModuleOrder      = "PEDIDOS"
	ModuleFinance    = "FINANCEIRO"
	ModuleStaff      = "FUNCIONARIOS"
	ModuleReports    = "RELATORIOS"
	ModuleUsers      = "USUARIOS"
)

// Modules returns every known module identifier
func Modules() []string {
	return []string{
		ModuleCompany,
		ModuleBranch,
		ModuleCostCenter,
		ModuleCategory,
		ModuleProduct,
		ModuleMenu,
		ModuleInventory,
		ModuleOrder,
		ModuleFinance,
		ModuleStaff,
		ModuleReports,
		ModuleUsers,
	}
}

// PolicyName returns the policy name that requires the given module
func PolicyName(module string) string {
	return ModulePolicyPrefix + module
}
