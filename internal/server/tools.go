package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var sessionIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Session ID returned by editor_open",
}

// sessionSchema builds an object schema with session_id plus extra
// properties. session_id is always required.
func sessionSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	properties := map[string]interface{}{
		"session_id": sessionIDProperty,
	}
	for k, v := range props {
		properties[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   append([]string{"session_id"}, required...),
	}
}

func adjustmentProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"minimum":     -100,
		"maximum":     100,
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Session lifecycle
		{
			Name:        "editor_open",
			Description: "Open a product photo for editing and return a new session. The source may be an http(s) URL, a data: URL, raw base64 image data, or a local file path. PNG, JPEG, GIF and WebP are supported.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": map[string]interface{}{
						"type":        "string",
						"description": "Image URL, data URL, base64 payload or absolute file path",
					},
				},
				"required": []string{"source"},
			},
		},
		{
			Name:        "editor_state",
			Description: "Return the session's state, current edits, output size and whether it can be exported or undone.",
			InputSchema: sessionSchema(nil),
		},
		{
			Name:        "editor_close",
			Description: "Close a session and release its images. Fails while background removal is running.",
			InputSchema: sessionSchema(nil),
		},

		// Edits
		{
			Name:        "editor_set_adjustments",
			Description: "Set tone controls, each from -100 to 100. Controls not given keep their current value. Before background removal they apply to the original photo; afterwards to the composed picture.",
			InputSchema: sessionSchema(map[string]interface{}{
				"exposure":   adjustmentProperty("Brightness in stops: +100 doubles every channel"),
				"contrast":   adjustmentProperty("Contrast around mid-gray"),
				"highlights": adjustmentProperty("Lift or pull pixels brighter than mid-gray"),
				"shadows":    adjustmentProperty("Lift or pull pixels darker than mid-gray"),
				"whites":     adjustmentProperty("Shift the brightest pixels"),
				"blacks":     adjustmentProperty("Shift the darkest pixels (positive darkens)"),
			}),
		},
		{
			Name:        "editor_set_background",
			Description: "Choose what is painted behind the product. Takes effect once the background has been removed.",
			InputSchema: sessionSchema(map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"original", "transparent", "solid", "procedural", "auto-contrast"},
					"description": "Background kind. auto-contrast picks dark or light gray from the product's brightness",
				},
				"color": map[string]interface{}{
					"type":        "string",
					"description": "Hex color (#RRGGBB or #RGB) for kind=solid",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"wood", "marble", "neutral", "light-noise"},
					"description": "Pattern for kind=procedural",
				},
			}, "kind"),
		},
		{
			Name:        "editor_set_shadow",
			Description: "Add a synthetic shadow under the product: a soft contact shadow (base), a halo (around), or none.",
			InputSchema: sessionSchema(map[string]interface{}{
				"shadow": map[string]interface{}{
					"type": "string",
					"enum": []string{"none", "base", "around"},
				},
			}, "shadow"),
		},
		{
			Name:        "editor_rotate",
			Description: "Rotate the output clockwise in quarter turns. By default adds the given degrees to the current rotation.",
			InputSchema: sessionSchema(map[string]interface{}{
				"degrees": map[string]interface{}{
					"type":        "integer",
					"description": "Multiple of 90. Negative values rotate counter-clockwise. Default 90",
					"default":     90,
				},
				"absolute": map[string]interface{}{
					"type":        "boolean",
					"description": "Set the rotation to degrees instead of adding to it",
					"default":     false,
				},
			}),
		},
		{
			Name:        "editor_remove_background",
			Description: "Isolate the product from its backdrop. Other commands on the session fail until it finishes. Sends notifications/progress when the request carries a progress token.",
			InputSchema: sessionSchema(nil),
		},
		{
			Name:        "editor_undo",
			Description: "Discard every edit, including background removal, and return to the photo as opened.",
			InputSchema: sessionSchema(nil),
		},

		// Output
		{
			Name:        "editor_preview",
			Description: "Render the current edits as a PNG. Transparent areas show a checkerboard.",
			InputSchema: sessionSchema(map[string]interface{}{
				"max_size": map[string]interface{}{
					"type":        "integer",
					"description": "Optional longest-side limit in pixels for the returned image",
				},
			}),
		},
		{
			Name:        "editor_export",
			Description: "Render the final PNG at full size. Transparent backgrounds stay transparent. Requires at least one edit.",
			InputSchema: sessionSchema(nil),
		},
		{
			Name:        "editor_sample_color",
			Description: "Get the color at a pixel of the preview or of the original photo, as hex, RGB, RGBA and HSL.",
			InputSchema: sessionSchema(map[string]interface{}{
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "X coordinate (0-based)",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Y coordinate (0-based)",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"preview", "original"},
					"description": "Which image to sample. Default preview",
					"default":     "preview",
				},
			}, "x", "y"),
		},
	}
}
