package types

// RequestType describes the kind of remote call for logging and error context
type RequestType string

const (
	RequestTypeListOrSearch RequestType = "ListOrSearch"
	RequestTypeGetByID      RequestType = "GetByID"
	RequestTypeDownload     RequestType = "Download"
	RequestTypeUpload       RequestType = "Upload"
	RequestTypeMutation     RequestType = "Mutation"
)

// RequestContext travels with a remote call through the retry client
type RequestContext struct {
	TraceID     string      `json:"traceId"`
	Service     string      `json:"service"`
	Subject     string      `json:"subject,omitempty"`
	RequestType RequestType `json:"requestType"`
	InvolvedIDs []string    `json:"involvedIds,omitempty"`
}

// CLIError is the structured error carried by utils.AppError
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// CLIWarning is a non-fatal notice in command output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIOutput is the JSON envelope of every command
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// OutputFormat selects how commands print results
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)
