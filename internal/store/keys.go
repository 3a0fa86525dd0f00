package store

import (
	"strings"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// DefaultTenant scopes keys when no tenant is configured.
const DefaultTenant = "default"

// Keys are colon-joined and never escaped: prefix, tenant and flag names
// must not contain ':'.
const keySep = ":"

// recordKey is prefix:tenant:flags:name:environment.
func recordKey(prefix, tenant, name string, env flags.Environment) string {
	return strings.Join([]string{prefix, tenantOrDefault(tenant), "flags", name, string(env)}, keySep)
}

// indexKey is prefix:tenant:flags, the set of flag names of a tenant.
func indexKey(prefix, tenant string) string {
	return strings.Join([]string{prefix, tenantOrDefault(tenant), "flags"}, keySep)
}

func tenantOrDefault(tenant string) string {
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}
