package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// MCP method names and notifications.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// Resources
	ResourcesListMethod          Method = "resources/list"
	ResourcesReadMethod          Method = "resources/read"
	ResourcesTemplatesListMethod Method = "resources/templates/list"

	// Prompts
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	// Logging
	LoggingSetLevelMethod            Method = "logging/setLevel"
	LoggingMessageNotificationMethod Method = "notifications/message"

	// General
	PingMethod                  Method = "ping"
	CancelledNotificationMethod Method = "notifications/cancelled"
	ProgressNotificationMethod  Method = "notifications/progress"
)

// BaseMetadata carries optional metadata for responses.
type BaseMetadata struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// RequestMeta is the _meta object a client may attach to any request.
type RequestMeta struct {
	ProgressToken ProgressToken `json:"progressToken,omitempty"`
}

// ProgressToken is an identifier used to correlate progress updates.
// It may be a string or number.
type ProgressToken any // string | number

// Progress is what a provider reports through its execution context.
type Progress struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitzero"`
	Message  string  `json:"message,omitzero"`
}

// ProgressNotificationParams is sent with notifications/progress.
type ProgressNotificationParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress
}

// LoggingMessageNotificationParams is sent with notifications/message.
type LoggingMessageNotificationParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitzero"`
	Data   any          `json:"data"`
}

// LogData is the payload providers attach to notifications/message.
type LogData struct {
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

// SetLevelRequest is the params of logging/setLevel.
type SetLevelRequest struct {
	Level LoggingLevel `json:"level"`
}

// InitializeRequest is the params of initialize.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult is the result of initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequestReceived is the params of tools/call as received.
type CallToolRequestReceived struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *RequestMeta    `json:"_meta,omitempty"`
}

// CallToolResult is the conventional result shape of tools/call.
type CallToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitzero"`
	BaseMetadata
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the result of resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceRequest is the params of resources/read. Fields other than uri
// and _meta are kept in Extra so they can be merged with template params.
type ReadResourceRequest struct {
	URI   string         `json:"uri"`
	Meta  *RequestMeta   `json:"_meta,omitempty"`
	Extra map[string]any `json:"-"`
}

// UnmarshalJSON keeps every param, including unknown ones, in Extra.
func (r *ReadResourceRequest) UnmarshalJSON(data []byte) error {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	type known struct {
		URI  string       `json:"uri"`
		Meta *RequestMeta `json:"_meta,omitempty"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	r.URI = k.URI
	r.Meta = k.Meta
	delete(all, "_meta")
	r.Extra = all
	return nil
}

// ReadResourceResult is the conventional result shape of resources/read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
	IsError  bool               `json:"isError,omitzero"`
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptRequestReceived is the params of prompts/get as received.
type GetPromptRequestReceived struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
	Meta      *RequestMeta      `json:"_meta,omitempty"`
}

// GetPromptResult is the conventional result shape of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitzero"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptErrorResult is returned from prompts/get when the prompt fails.
type PromptErrorResult struct {
	Contents []ResourceContents `json:"contents"`
	IsError  bool               `json:"isError"`
}

// EmptyResult is the result of ping and other acknowledgement-only methods.
type EmptyResult struct{}

// NewToolErrorResult builds the tools/call result reporting a failure.
func NewToolErrorResult(msg string) *CallToolResult {
	return &CallToolResult{
		Content: []ContentBlock{{Type: ContentTypeText, Text: msg}},
		IsError: true,
	}
}

// NewResourceErrorResult builds the resources/read result reporting a failure for uri.
func NewResourceErrorResult(uri, msg string) *ReadResourceResult {
	return &ReadResourceResult{
		Contents: []ResourceContents{{URI: uri, MimeType: "text/plain", Text: msg}},
		IsError:  true,
	}
}

// NewPromptErrorResult builds the prompts/get result reporting a failure.
func NewPromptErrorResult(msg string) *PromptErrorResult {
	return &PromptErrorResult{
		Contents: []ResourceContents{{MimeType: "text/plain", Text: msg}},
		IsError:  true,
	}
}
