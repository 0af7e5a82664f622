package config

import (
	"github.com/squadron-project/squadron/internal/schema"
)

// extensionSchemas describes the settings each built-in console
// extension accepts. The console renders its settings forms from these
// definitions; the backend fills defaults on load and validates
// configured values against them.
var extensionSchemas = map[string]schema.Field{
	"chat_filter": schema.ObjectField("chat_filter",
		schema.BoolField("enabled", false),
		schema.StringField("action", "warn", "warn", "kick", "ban"),
		schema.ArrayField("blocked_phrases", schema.StringField("phrase", "")),
	),
	"seeding": schema.ObjectField("seeding",
		schema.BoolField("enabled", false),
		schema.IntField("player_threshold", 40, 1, 100),
		schema.StringField("broadcast_message", "Seeding in progress, please play the objective."),
	),
}

// ExtensionSchemas returns the settings schema for every built-in
// extension, keyed by extension name.
func ExtensionSchemas() map[string]schema.Field {
	out := make(map[string]schema.Field, len(extensionSchemas))
	for name, f := range extensionSchemas {
		out[name] = f
	}
	return out
}

// applyExtensionDefaults fills missing extension settings with their
// schema defaults, so the saved config file always shows every knob.
// Settings for unknown extensions are left untouched.
func applyExtensionDefaults(ext map[string]map[string]interface{}) map[string]map[string]interface{} {
	if ext == nil {
		ext = make(map[string]map[string]interface{}, len(extensionSchemas))
	}
	for name, sch := range extensionSchemas {
		settings := ext[name]
		if settings == nil {
			settings = make(map[string]interface{}, len(sch.Fields))
		}
		for _, member := range sch.Fields {
			if _, ok := settings[member.Name]; !ok {
				settings[member.Name] = member.Default()
			}
		}
		ext[name] = settings
	}
	return ext
}

// validateExtensions checks every configured extension's settings
// against its schema. Settings for an extension this build does not
// know are a warning, not an error, so downgrades stay bootable.
func validateExtensions(ext map[string]map[string]interface{}, result *ValidationResult) {
	for name, settings := range ext {
		sch, ok := extensionSchemas[name]
		if !ok {
			result.AddWarning("application_data.extensions."+name,
				"unknown extension, settings will be ignored")
			continue
		}
		if err := sch.Validate(map[string]interface{}(settings)); err != nil {
			result.AddError("application_data.extensions."+name, err.Error())
		}
	}
}
