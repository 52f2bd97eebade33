package live

// ConsultToolName is the single tool the live model may call.
const ConsultToolName = "consult_core_system"

// ConsultCoreSystem routes anything outside the model's immediate context
// to the agent router.
var ConsultCoreSystem = FunctionDeclaration{
	Name: ConsultToolName,
	Parameters: &Schema{
		Type:        "OBJECT",
		Description: "MANDATORY tool for ANY information not in current context. Use this for Web Search, Real-time data (News/Weather), DB lookup, Tasks, or deep reasoning. Pass the user request exactly.",
		Properties: map[string]*Schema{
			"query": {
				Type:        "STRING",
				Description: "The full user request/query.",
			},
		},
		Required: []string{"query"},
	},
}
