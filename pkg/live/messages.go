package live

// Wire types for the Gemini Live bidirectional protocol. Field names use
// the camelCase JSON form the service emits; it accepts the same form on
// input.

// ClientMessage is one frame sent to the server. Exactly one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Setup is the first frame of every connection.
type Setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	Tools                    []Tool            `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig selects output modality and voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig wraps the prebuilt voice selection.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig wraps PrebuiltVoiceConfig.
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig names a built-in voice such as "Fenrir".
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Tool groups function declarations.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes a callable tool.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the subset of OpenAPI schema used by tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part carries text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob is base64 data with a mime type.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// RealtimeInput streams media to the model.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// ClientContent appends turns to the conversation.
type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// ToolResponse answers one or more function calls.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse is the result of a single call.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ServerMessage is one frame received from the server. Several fields may
// be set at once.
type ServerMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *GoAway               `json:"goAway,omitempty"`
}

// HasPayload reports whether the message carries anything beyond the
// setup acknowledgement.
func (m *ServerMessage) HasPayload() bool {
	return m.ServerContent != nil || m.ToolCall != nil || m.ToolCallCancellation != nil || m.GoAway != nil
}

// ServerContent carries model output and turn signals.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Audio returns every inline audio blob in the model turn, in order.
func (c *ServerContent) Audio() []Blob {
	if c == nil || c.ModelTurn == nil {
		return nil
	}
	var out []Blob
	for _, p := range c.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			out = append(out, *p.InlineData)
		}
	}
	return out
}

// Transcription is an incremental transcript fragment.
type Transcription struct {
	Text     string `json:"text"`
	Finished bool   `json:"finished,omitempty"`
}

// ToolCall asks the client to run functions.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is one requested invocation.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// StringArg returns args[key] if it is a string.
func (f FunctionCall) StringArg(key string) string {
	s, _ := f.Args[key].(string)
	return s
}

// ToolCallCancellation withdraws earlier calls.
type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

// GoAway warns that the server will close the connection soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
