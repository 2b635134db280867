package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// 网关透传的租户与学员标识
const (
	HeaderTenantID       = "X-Tenant-ID"
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserID         = "X-User-ID"
)

// gin.Context 中的键
const (
	CtxScopeKey  = "tenant_scope"
	CtxUserIDKey = "user_id"
)
