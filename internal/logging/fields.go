package logging

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldProjectID   = "project_id"
	FieldCategoryID  = "category_id"
	FieldTxnID       = "transaction_id"
	FieldTxnNumber   = "transaction_number"
	FieldAlertType   = "alert_type"
	FieldPercentage  = "percentage"
	FieldUserID      = "user_id"
	FieldFile        = "file"
	FieldFixed       = "fixed"
	FieldErrorsCount = "errors"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentFinance = "finance"
	ComponentStorage = "storage"
	ComponentCache   = "cache"
	ComponentAMQP    = "amqp"
	ComponentRepair  = "repair"
	ComponentAuth    = "auth"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpRecompute = "recompute"
	OpRepair    = "repair"
	OpImport    = "import"
	OpPublish   = "publish"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
